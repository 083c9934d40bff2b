package common

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// CommandLineFormatter prints the bare message, for interactive CLI output.
type CommandLineFormatter struct{}

func (f *CommandLineFormatter) Format(entry *log.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("%s\n", entry.Message)), nil
}
