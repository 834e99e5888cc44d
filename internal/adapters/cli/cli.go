// Package cli — интерактивная командная консоль управления защитой.
// Сервис стартует фоном, читает команды из readline и транслирует их в
// операции Guard и пула подключений: добавление/удаление аккаунтов,
// переключение destroyer/forward, временные послабления, пароль отключения
// и просмотр журнала аудита. Start/Stop идемпотентны.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"syscall"
	"time"

	"telegram-otpguard/internal/domain/accounts"
	"telegram-otpguard/internal/domain/otp"
	"telegram-otpguard/internal/infra/config"
	"telegram-otpguard/internal/infra/logger"
	"telegram-otpguard/internal/infra/telegram/connpool"

	"github.com/chzyer/readline"
	"golang.org/x/term"
)

// commandDescriptor описывает одну CLI-команду для help.
type commandDescriptor struct {
	name        string
	description string
}

// commandDescriptors — реестр доступных команд. Имена должны совпадать с
// кейсами в handleCommand().
var commandDescriptors = []commandDescriptor{
	{name: "help", description: "Show available commands with short descriptions"},
	{name: "list", description: "List managed accounts and their protection state"},
	{name: "add", description: "add <id> <phone> [name] - connect and protect a new account"},
	{name: "rm", description: "rm <id> - disconnect and remove an account"},
	{name: "on", description: "on <id> - enable the OTP destroyer"},
	{name: "off", description: "off <id> - disable the OTP destroyer (password-gated)"},
	{name: "fwd", description: "fwd <id> on|off - toggle login code forwarding"},
	{name: "pause", description: "pause <id> - pause the destroyer for 5 minutes"},
	{name: "temp", description: "temp <id> - forward the next codes for 5 minutes"},
	{name: "passwd", description: "passwd <id> - set or change the disable password"},
	{name: "rmpasswd", description: "rmpasswd <id> - remove the disable password"},
	{name: "audit", description: "audit <id> - print the account audit log"},
	{name: "exit", description: "Stop CLI and terminate the service"},
}

// Service инкапсулирует CLI и интегрируется в lifecycle приложения.
type Service struct {
	guard   *otp.Guard
	pool    *connpool.Pool
	store   accounts.Store
	ownerID int64
	stopApp context.CancelFunc

	rl        *readline.Instance
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	onceStart sync.Once
	onceStop  sync.Once
}

// NewService создаёт CLI-сервис. stopApp — внешняя остановка приложения
// (команда exit, Ctrl-C на пустой строке).
func NewService(guard *otp.Guard, pool *connpool.Pool, store accounts.Store, ownerID int64, stopApp context.CancelFunc) *Service {
	return &Service{
		guard:   guard,
		pool:    pool,
		store:   store,
		ownerID: ownerID,
		stopApp: stopApp,
	}
}

// Start запускает цикл CLI в отдельной горутине. Повторные вызовы игнорируются.
func (s *Service) Start(ctx context.Context) {
	s.onceStart.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(runCtx)
		}()
	})
}

// Stop завершает CLI: прерывает readline, отменяет контекст и дожидается
// завершения цикла.
func (s *Service) Stop() {
	s.onceStop.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.rl != nil {
			_ = s.rl.Close()
		}
		s.wg.Wait()
	})
}

// run — основной цикл чтения команд.
func (s *Service) run(ctx context.Context) {
	rl, err := readline.New("> ")
	if err != nil {
		logger.Errorf("CLI: readline init failed: %v", err)
		return
	}
	s.rl = rl
	defer func() { _ = rl.Close() }()

	fmt.Println("CLI started. Enter commands:", joinCommandNames(commandDescriptors))
	fmt.Println("Type 'help' for detailed descriptions.")

	for {
		if ctx.Err() != nil {
			logger.Debug("CLI: context canceled")
			return
		}

		line, readErr := rl.Readline()
		if readErr == readline.ErrInterrupt {
			// Ctrl-C на пустой строке гасит приложение, на непустой чистит строку.
			if strings.TrimSpace(line) == "" {
				if s.stopApp != nil {
					s.stopApp()
				}
				return
			}
			continue
		}
		if readErr == io.EOF || readErr != nil {
			logger.Debug("CLI: deactivated (io.EOF)")
			return
		}

		if s.handleCommand(ctx, strings.TrimSpace(line)) {
			return
		}
	}
}

// handleCommand разбирает команду и выполняет действие. Возвращает true,
// если команда инициирует завершение CLI.
func (s *Service) handleCommand(ctx context.Context, cmd string) bool {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return false
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "help":
		printCommandHelp()
	case "list":
		s.handleList(ctx)
	case "add":
		s.handleAdd(ctx, args)
	case "rm":
		s.handleRemove(ctx, args)
	case "on":
		s.withAccount(args, func(id string) {
			s.report(s.guard.ToggleDestroyer(ctx, s.ownerID, id, true, ""))
		})
	case "off":
		s.withAccount(args, func(id string) {
			password := promptPassword("Disable password (Enter if not set): ")
			s.report(s.guard.ToggleDestroyer(ctx, s.ownerID, id, false, password))
		})
	case "fwd":
		s.handleForward(ctx, args)
	case "pause":
		s.withAccount(args, func(id string) {
			password := promptPassword("Disable password (Enter if not set): ")
			s.report(s.guard.PauseDestroyer(ctx, s.ownerID, id, password))
		})
	case "temp":
		s.withAccount(args, func(id string) {
			password := promptPassword("Disable password (Enter if not set): ")
			s.report(s.guard.EnableTempPassthrough(ctx, s.ownerID, id, password))
		})
	case "passwd":
		s.handlePasswd(ctx, args)
	case "rmpasswd":
		s.withAccount(args, func(id string) {
			password := promptPassword("Current disable password: ")
			s.report(s.guard.RemoveDisablePassword(ctx, s.ownerID, id, password))
		})
	case "audit":
		s.withAccount(args, func(id string) { s.handleAudit(ctx, id) })
	case "exit":
		if s.stopApp != nil {
			s.stopApp()
		}
		return true
	default:
		fmt.Println("unknown command:", cmd)
	}
	return false
}

// withAccount проверяет, что первым аргументом передан id аккаунта.
func (s *Service) withAccount(args []string, fn func(id string)) {
	if len(args) < 1 {
		fmt.Println("usage: <command> <account-id>")
		return
	}
	fn(args[0])
}

// report печатает результат операции Guard.
func (s *Service) report(msg string, err error) {
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(msg)
}

func (s *Service) handleList(ctx context.Context) {
	accs, err := s.store.ListByOwner(ctx, s.ownerID)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if len(accs) == 0 {
		fmt.Println("No accounts yet. Use 'add <id> <phone> [name]'.")
		return
	}
	for _, acc := range accs {
		state := "idle"
		switch {
		case acc.DestroyerEnabled:
			state = "destroyer"
		case acc.ForwardEnabled:
			state = "forward"
		}
		gated := ""
		if acc.DisableAuthHash != "" {
			gated = " [password-gated]"
		}
		fmt.Printf("  %-12s %-16s %-12s %s%s\n", acc.ID, acc.Name, acc.Phone, state, gated)
	}
	fmt.Printf("Total accounts: %d\n", len(accs))
}

func (s *Service) handleAdd(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Println("usage: add <id> <phone> [name]")
		return
	}
	id, phone := args[0], args[1]
	var name string
	if len(args) > 2 {
		name = strings.Join(args[2:], " ")
	}

	acc, err := s.guard.CreateAccount(ctx, s.ownerID, id, name, phone)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("Account registered, connecting (the sign-in code will be destroyed after setup)...")
	if err := s.pool.Connect(acc, phone); err != nil {
		fmt.Println("connect error:", err)
		if rmErr := s.guard.RemoveAccount(ctx, s.ownerID, id); rmErr != nil {
			fmt.Println("rollback error:", rmErr)
		}
		return
	}
	fmt.Printf("Account %q connected and protected.\n", id)
}

func (s *Service) handleRemove(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Println("usage: rm <account-id>")
		return
	}
	id := args[0]
	s.pool.Disconnect(s.ownerID, id)
	if err := s.guard.RemoveAccount(ctx, s.ownerID, id); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("Account %q removed.\n", id)
}

func (s *Service) handleForward(ctx context.Context, args []string) {
	if len(args) < 2 || (args[1] != "on" && args[1] != "off") {
		fmt.Println("usage: fwd <account-id> on|off")
		return
	}
	s.report(s.guard.ToggleForward(ctx, s.ownerID, args[0], args[1] == "on"))
}

func (s *Service) handlePasswd(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Println("usage: passwd <account-id>")
		return
	}
	current := promptPassword("Current disable password (Enter if not set): ")
	next := promptPassword("New disable password: ")
	confirm := promptPassword("Repeat new disable password: ")
	if next != confirm {
		fmt.Println("error: passwords do not match")
		return
	}
	s.report(s.guard.SetDisablePassword(ctx, s.ownerID, args[0], current, next))
}

func (s *Service) handleAudit(ctx context.Context, id string) {
	entries, err := s.guard.AuditLog(ctx, s.ownerID, id)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if len(entries) == 0 {
		fmt.Println("Audit log is empty.")
		return
	}
	loc := config.AppLocation
	if loc == nil {
		loc = time.Local
	}
	for _, e := range entries {
		line := fmt.Sprintf("  #%d %s %s", e.Seq, e.Timestamp.In(loc).Format("2006-01-02 15:04:05"), e.Action)
		if e.Code != "" {
			line += " code=" + e.Code
		}
		if e.Excerpt != "" {
			line += fmt.Sprintf(" excerpt=%q", e.Excerpt)
		}
		fmt.Println(line)
	}
	fmt.Printf("Total entries: %d\n", len(entries))
}

// promptPassword читает пароль без эха.
func promptPassword(prompt string) string {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return ""
	}
	return string(raw)
}

// printCommandHelp печатает список поддерживаемых команд и их описания.
func printCommandHelp() {
	fmt.Println("Available commands:")
	for _, d := range commandDescriptors {
		fmt.Printf("  %-8s - %s\n", d.name, d.description)
	}
}

// joinCommandNames собирает строку имён команд для короткой подсказки.
func joinCommandNames(descriptors []commandDescriptor) string {
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.name)
	}
	return strings.Join(names, ", ")
}
