// Package prompt asks questions needed to decide how book is split.
package prompt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrCancelled is returned when user interrupts a prompt.
var ErrCancelled = errors.New("cancelled by user")

// Asker answers questions. Console implementation talks to terminal, tests
// use scripted ones.
type Asker interface {
	// Level returns one of offered contents levels.
	Level(levels []int) (int, error)
	// Selection returns raw selection string.
	Selection(count int) (string, error)
	// Confirm asks yes/no question.
	Confirm(label string, def bool) (bool, error)
	// Index asks for non negative number.
	Index(label string, def int) (int, error)
}

// Console asks questions on terminal.
type Console struct{}

// Level implements Asker.
func (Console) Level(levels []int) (int, error) {
	items := make([]string, len(levels))
	for i, l := range levels {
		items[i] = fmt.Sprintf("Level %d", l)
	}
	sel := promptui.Select{
		Label: "Select contents level to split at",
		Items: items,
	}
	idx, _, err := sel.Run()
	if err != nil {
		return 0, interrupted(err)
	}
	return levels[idx], nil
}

// Selection implements Asker.
func (Console) Selection(count int) (string, error) {
	p := promptui.Prompt{
		Label:     fmt.Sprintf("Sections to extract (e.g. 1,3,5-7 of %d, empty for all)", count),
		Default:   "",
		AllowEdit: true,
		// promptui keeps asking until input selects something
		Validate: func(s string) error {
			if len(ParseSelection(s, count)) == 0 {
				return errors.New("nothing selected")
			}
			return nil
		},
	}
	result, err := p.Run()
	if err != nil {
		return "", interrupted(err)
	}
	return result, nil
}

// Confirm implements Asker.
func (Console) Confirm(label string, def bool) (bool, error) {
	p := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	if def {
		p.Default = "y"
	}
	_, err := p.Run()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, promptui.ErrAbort):
		return false, nil
	default:
		return false, interrupted(err)
	}
}

// Index implements Asker.
func (Console) Index(label string, def int) (int, error) {
	p := promptui.Prompt{
		Label:   label,
		Default: strconv.Itoa(def),
		Validate: func(s string) error {
			if n, err := strconv.Atoi(strings.TrimSpace(s)); err != nil || n < 0 {
				return errors.New("non negative number expected")
			}
			return nil
		},
	}
	result, err := p.Run()
	if err != nil {
		return 0, interrupted(err)
	}
	return strconv.Atoi(strings.TrimSpace(result))
}

func interrupted(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return ErrCancelled
	}
	return err
}
