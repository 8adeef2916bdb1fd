package interactive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/sahilm/fuzzy"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/domain/config"
	"github.com/chainsmith/chasm/internal/usecase"
)

// ErrNonInteractive is returned when a prompt is needed but prompting is disabled
var ErrNonInteractive = errors.New("interactive prompt not available in non-interactive mode")

// SelectorAdapter handles interactive prompts
type SelectorAdapter struct {
	config *config.RuntimeConfig
}

// NewSelectorAdapter creates a new selector adapter
func NewSelectorAdapter(cfg *config.RuntimeConfig) *SelectorAdapter {
	return &SelectorAdapter{config: cfg}
}

// Confirm asks a yes/no question
func (s *SelectorAdapter) Confirm(ctx context.Context, prompt string) (bool, error) {
	if s.config.NonInteractive {
		return false, ErrNonInteractive
	}

	p := promptui.Prompt{
		Label:     prompt,
		IsConfirm: true,
	}
	if _, err := p.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, fmt.Errorf("prompt cancelled: %w", err)
	}
	return true, nil
}

// SelectSnapshot lets the operator pick a snapshot, newest first
func (s *SelectorAdapter) SelectSnapshot(ctx context.Context, snapshots []domain.Snapshot, prompt string) (*domain.Snapshot, error) {
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("no snapshots to choose from")
	}
	if s.config.NonInteractive {
		return nil, ErrNonInteractive
	}

	ordered := make([]domain.Snapshot, len(snapshots))
	for i := range snapshots {
		ordered[len(snapshots)-1-i] = snapshots[i]
	}
	options := formatSnapshotOptions(ordered)

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "▸ {{ . | cyan }}",
		Inactive: "  {{ . | faint }}",
		Selected: "✓ {{ . | green }}",
		Help:     color.New(color.FgYellow).Sprint("Use arrow keys to navigate, Enter to select"),
	}

	promptSelect := promptui.Select{
		Label:             prompt,
		Items:             options,
		Templates:         templates,
		Size:              10,
		StartInSearchMode: len(options) > 10,
		Searcher:          createFuzzySearchFunc(options),
	}

	index, _, err := promptSelect.Run()
	if err != nil {
		return nil, fmt.Errorf("selection cancelled: %w", err)
	}
	return &ordered[index], nil
}

// formatSnapshotOptions renders "snap-3  transfer  0xabc…  confirmed @ 101"
func formatSnapshotOptions(snapshots []domain.Snapshot) []string {
	options := make([]string, len(snapshots))
	for i, snap := range snapshots {
		parts := []string{
			color.New(color.FgWhite, color.Bold).Sprint(snap.LocalID),
			snap.Method,
		}
		if snap.TxHash != nil {
			hex := snap.TxHash.Hex()
			parts = append(parts, color.New(color.FgBlue).Sprint(hex[:10]+"…"))
		}
		status := string(snap.Status)
		if snap.BlockNumber != nil {
			status = fmt.Sprintf("%s @ %d", status, *snap.BlockNumber)
		}
		parts = append(parts, color.New(statusColor(snap.Status)).Sprint(status))
		options[i] = strings.Join(parts, "  ")
	}
	return options
}

func statusColor(status domain.SnapshotStatus) color.Attribute {
	switch status {
	case domain.SnapshotConfirmed:
		return color.FgGreen
	case domain.SnapshotError:
		return color.FgRed
	default:
		return color.FgYellow
	}
}

// createFuzzySearchFunc creates a fuzzy search function for promptui
func createFuzzySearchFunc(items []string) func(input string, index int) bool {
	return func(input string, index int) bool {
		if input == "" {
			return true
		}

		input = strings.ToLower(input)
		item := strings.ToLower(items[index])

		if strings.Contains(item, input) {
			return true
		}

		return len(fuzzy.Find(input, []string{item})) > 0
	}
}

var _ usecase.InteractiveSelector = (*SelectorAdapter)(nil)
