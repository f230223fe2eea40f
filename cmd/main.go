package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/forest-guardian/ndwi-water-cli/internal/notification"
)

func printBanner() {
	figure1 := figure.NewFigure("NDWI", "isometric1", true)
	figure2 := figure.NewFigure("CLI", "isometric1", true)
	bannercolor.Cyan(figure1.String())
	bannercolor.Cyan(figure2.String())
	fmt.Println()
}

// reportPanic prints the panic location and forwards the stack trace to the
// Discord error webhook when one is configured.
func reportPanic(r interface{}) {
	pc, file, line, ok := runtime.Caller(3)
	var location string
	if ok {
		fn := runtime.FuncForPC(pc)
		location = fmt.Sprintf("%s:%d in %s", file, line, fn.Name())
	} else {
		location = "Unknown location"
	}

	bannercolor.Red("\nPANIC: %v", r)
	bannercolor.Red("Location: %s", location)
	bannercolor.Red("Please check the input and try again.")

	errMessage := fmt.Sprintf("NDWI CLI panic:\n\n%v\n\nLocation: %s\n\nStack trace:\n%s", r, location, debug.Stack())
	discord := notification.NewDiscord(os.Getenv("DISCORD_ERROR_NOTIFICATION_URL"), "")
	if err := discord.NotifyError(context.Background(), errMessage); err != nil {
		bannercolor.Red("Failed to send notification: %s", err.Error())
	}
}

func main() {
	code := 0
	func() {
		defer func() {
			if r := recover(); r != nil {
				reportPanic(r)
				code = 2
			}
		}()
		if err := newRootCmd().Execute(); err != nil {
			code = 1
		}
	}()
	os.Exit(code)
}
