package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/yokitheyo/gamdlbot/internal/config"
	"github.com/yokitheyo/gamdlbot/internal/gamdl"
	"github.com/yokitheyo/gamdlbot/internal/hostlock"
	"github.com/yokitheyo/gamdlbot/internal/model"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true).Underline(true)
)

type checkStatus int

const (
	checkOK checkStatus = iota
	checkWarn
	checkFail
)

type checkResult struct {
	Name   string
	Status checkStatus
	Detail string
}

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that the bot can run on this host",
	Long: `Check the environment the bot depends on:
  • gamdl entrypoint on PATH
  • cookies file
  • writable output root
  • bot token presence
  • instance lock state`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		results := runChecks(cfg)
		printChecks(cmd.OutOrStdout(), results)
		for _, r := range results {
			if r.Status == checkFail {
				return errors.New("healthcheck failed")
			}
		}
		return nil
	},
}

func runChecks(cfg *config.Config) []checkResult {
	return []checkResult{
		checkDownloader(cfg),
		checkCookies(cfg),
		checkOutputRoot(cfg),
		checkToken(cfg),
		checkLock(cfg),
	}
}

func checkDownloader(cfg *config.Config) checkResult {
	command := gamdl.LookupCommand(cfg.Gamdl.Binary)
	r := checkResult{Name: "downloader"}
	path, err := exec.LookPath(command[0])
	if err != nil {
		r.Status = checkFail
		r.Detail = fmt.Sprintf("%s not found on PATH", command[0])
		return r
	}
	r.Detail = strings.Join(append([]string{path}, command[1:]...), " ")
	return r
}

func checkCookies(cfg *config.Config) checkResult {
	r := checkResult{Name: "cookies", Detail: cfg.Gamdl.CookiesPath}
	info, err := os.Stat(cfg.Gamdl.CookiesPath)
	switch {
	case err != nil:
		r.Status = checkWarn
		r.Detail = fmt.Sprintf("%s: %v", cfg.Gamdl.CookiesPath, err)
	case info.IsDir():
		r.Status = checkFail
		r.Detail = cfg.Gamdl.CookiesPath + " is a directory"
	case info.Size() == 0:
		r.Status = checkWarn
		r.Detail = cfg.Gamdl.CookiesPath + " is empty"
	}
	return r
}

func checkOutputRoot(cfg *config.Config) checkResult {
	r := checkResult{Name: "output root", Detail: cfg.OutputRoot}
	if err := os.MkdirAll(cfg.OutputRoot, 0o755); err != nil {
		r.Status = checkFail
		r.Detail = err.Error()
		return r
	}
	f, err := os.CreateTemp(cfg.OutputRoot, ".healthcheck-*")
	if err != nil {
		r.Status = checkFail
		r.Detail = fmt.Sprintf("%s is not writable: %v", cfg.OutputRoot, err)
		return r
	}
	f.Close()
	os.Remove(f.Name())
	return r
}

func checkToken(cfg *config.Config) checkResult {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return checkResult{Name: "bot token", Status: checkFail, Detail: "TELEGRAM_BOT_TOKEN is not set"}
	}
	return checkResult{Name: "bot token", Detail: "set"}
}

func checkLock(cfg *config.Config) checkResult {
	r := checkResult{Name: "instance lock", Detail: cfg.LockFile + " is free"}
	lock, err := hostlock.Acquire(cfg.LockFile)
	if err == nil {
		lock.Release()
		return r
	}
	if !errors.Is(err, model.ErrResourceBusy) {
		r.Status = checkFail
		r.Detail = err.Error()
		return r
	}
	r.Status = checkWarn
	r.Detail = "held by a running instance"
	if owner, ierr := hostlock.Inspect(cfg.LockFile); ierr == nil && owner.PID != 0 {
		r.Detail = fmt.Sprintf("held by pid %d on %s since %s", owner.PID, owner.Hostname, owner.StartedAt)
	}
	return r
}

func printChecks(w io.Writer, results []checkResult) {
	fmt.Fprintln(w, sectionStyle.Render("gamdlbot health check"))
	fmt.Fprintln(w)
	for _, r := range results {
		var mark string
		switch r.Status {
		case checkOK:
			mark = successStyle.Render("✅ " + r.Name)
		case checkWarn:
			mark = warningStyle.Render("⚠️  " + r.Name)
		default:
			mark = errorStyle.Render("❌ " + r.Name)
		}
		fmt.Fprintf(w, "%s: %s\n", mark, r.Detail)
	}
}
