// Package ui implements the console-facing AuthInput and dialog-selection
// prompts, plus an mpb progress bar over dialogs processed during a
// backup run.
package ui

import (
	"errors"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/Berektassuly/tg-sync/internal/domain"
)

// ConsoleUI handles user interactions via the terminal.
type ConsoleUI struct {
	nonInteractive bool
}

func NewConsoleUI(nonInteractive bool) *ConsoleUI {
	return &ConsoleUI{nonInteractive: nonInteractive}
}

// GetPhoneNumber prompts the user for their phone number.
func (u *ConsoleUI) GetPhoneNumber() (string, error) {
	prompt := promptui.Prompt{
		Label: "Enter Phone Number (international format, e.g. +39...)",
		Validate: func(input string) error {
			if len(input) < 5 {
				return errors.New("phone number too short")
			}
			return nil
		},
	}
	return prompt.Run()
}

// GetCode prompts the user for the authentication code.
func (u *ConsoleUI) GetCode() (string, error) {
	prompt := promptui.Prompt{
		Label: "Enter Code",
		Validate: func(input string) error {
			if len(input) == 0 {
				return errors.New("code cannot be empty")
			}
			return nil
		},
	}
	return prompt.Run()
}

// GetPassword prompts the user for their 2FA password.
func (u *ConsoleUI) GetPassword() (string, error) {
	prompt := promptui.Prompt{
		Label: "Enter 2FA Password",
		Mask:  '*',
	}
	return prompt.Run()
}

// SelectDialog prompts the user to pick one dialog, used by the blacklist
// subcommand.
func (u *ConsoleUI) SelectDialog(dialogs []domain.Dialog) (domain.Dialog, error) {
	if len(dialogs) == 0 {
		return domain.Dialog{}, errors.New("no dialogs available")
	}

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}?",
		Active:   "\U0001F449 {{ .Title | cyan }}",
		Inactive: "  {{ .Title | white }}",
		Selected: "\U0001F44D {{ .Title | green | cyan }}",
	}

	prompt := promptui.Select{
		Label:     "Select Dialog",
		Items:     dialogs,
		Templates: templates,
		Size:      10,
		Searcher: func(input string, index int) bool {
			d := dialogs[index]
			name := strings.ReplaceAll(strings.ToLower(d.Title), " ", "")
			input = strings.ReplaceAll(strings.ToLower(input), " ", "")
			return strings.Contains(name, input)
		},
	}

	i, _, err := prompt.Run()
	if err != nil {
		return domain.Dialog{}, err
	}
	return dialogs[i], nil
}

// DialogProgress wraps the mpb progress container and its single bar so the
// backup subcommand can increment it as each dialog finishes.
type DialogProgress struct {
	progress *mpb.Progress
	bar      *mpb.Bar
}

// ProgressBar starts a bar tracking how many of total dialogs have
// completed their sync pass during a backup run, or nil in non-interactive
// mode.
func (u *ConsoleUI) ProgressBar(total int) *DialogProgress {
	if u.nonInteractive || total == 0 {
		return nil
	}
	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name("dialogs", decor.WC{W: 8}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncSpace),
		),
		mpb.AppendDecorators(decor.Percentage(decor.WCSyncSpace)),
	)
	return &DialogProgress{progress: p, bar: bar}
}

// Increment advances the bar by one completed dialog.
func (d *DialogProgress) Increment() {
	if d == nil {
		return
	}
	d.bar.Increment()
}

// Wait blocks until the bar finishes rendering.
func (d *DialogProgress) Wait() {
	if d == nil {
		return
	}
	d.progress.Wait()
}
