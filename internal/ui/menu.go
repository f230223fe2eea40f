package ui

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/forest-guardian/ndwi-water-cli/internal/delivery"
	"github.com/forest-guardian/ndwi-water-cli/internal/location"
	"github.com/forest-guardian/ndwi-water-cli/internal/properties"
)

type Runner interface {
	DefaultRequest(loc location.Location) delivery.Request
	Run(ctx context.Context, req delivery.Request) (*delivery.Result, error)
}

type Menu struct {
	ctx    context.Context
	runner Runner
	cfg    *properties.Config
}

func NewMenu(ctx context.Context, runner Runner, cfg *properties.Config) *Menu {
	return &Menu{ctx: ctx, runner: runner, cfg: cfg}
}

type menuOption struct {
	title   string
	handler func()
}

// Show displays the main menu until the user exits, the input ends or the
// context is cancelled.
func (m *Menu) Show() {
	menuOptions := []menuOption{
		{"Use predefined location", m.UsePredefinedLocation},
		{"Enter custom coordinates", m.UseCustomCoordinates},
		{"Show configuration", m.ShowConfiguration},
		{"Show analysis history", m.ShowHistory},
	}

	PrintHeader("Sentinel-2 NDWI Analysis")
	fmt.Fprintln(out, "No authentication required - uses the public STAC API!")
	PrintLocations()

	for m.ctx.Err() == nil {
		blue.Fprintln(out, "===================")
		for i, opt := range menuOptions {
			blue.Fprintf(out, "%d. %s\n", i+1, opt.title)
		}
		blue.Fprintf(out, "%d. Exit\n", len(menuOptions)+1)

		choice, err := ReadInt(fmt.Sprintf("Enter your choice (1-%d): ", len(menuOptions)+1), 1, len(menuOptions)+1)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out, "\nGoodbye!")
			return
		}
		if err != nil {
			PrintError(fmt.Sprintf("Invalid choice. Please enter 1-%d.", len(menuOptions)+1))
			continue
		}
		if choice == len(menuOptions)+1 {
			fmt.Fprintln(out, "Goodbye!")
			return
		}

		menuOptions[choice-1].handler()
	}
}
