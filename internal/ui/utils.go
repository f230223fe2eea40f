package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

var (
	in  = bufio.NewReader(os.Stdin)
	out io.Writer = os.Stdout
)

var (
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	blue   = color.New(color.FgBlue)
	bold   = color.New(color.Bold)
)

// PrintWarning displays a warning message with consistent formatting
func PrintWarning(message string) {
	yellow.Fprintf(out, "\nWarning:\n%s\n", message)
}

// PrintError displays an error message with consistent formatting
func PrintError(message string) {
	red.Fprintf(out, "\nError: %s\n", message)
}

// PrintSuccess displays a success message with consistent formatting
func PrintSuccess(message string) {
	green.Fprintf(out, "\n%s\n", message)
}

// PrintInfo displays an info message with consistent formatting
func PrintInfo(message string) {
	blue.Fprint(out, message)
}

func PrintHeader(title string) {
	bold.Fprintf(out, "\n%s\n%s\n", title, strings.Repeat("=", 50))
}

// ReadString reads a trimmed line from stdin. io.EOF is returned only when
// nothing was typed before the input ended.
func ReadString(prompt string) (string, error) {
	PrintInfo(prompt)
	input, err := in.ReadString('\n')
	input = strings.TrimSpace(input)
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		return "", err
	}
	return input, nil
}

// ReadInt reads an integer from stdin with validation
func ReadInt(prompt string, min, max int) (int, error) {
	input, err := ReadString(prompt)
	if err != nil {
		return 0, err
	}

	value, err := strconv.Atoi(input)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", input)
	}

	if value < min || value > max {
		return 0, fmt.Errorf("value must be between %d and %d", min, max)
	}

	return value, nil
}
