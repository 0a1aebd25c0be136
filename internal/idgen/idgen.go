// Package idgen generates the identifiers attached to every log line of a run.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet is lower-case only so run ids are easy to grep in logs.
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Length is the number of random characters after the command prefix.
const Length = 12

// RunID returns a new id for one execution of the named command, for
// example "collect-k3v9x0a2mq7b".
func RunID(command string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return command + "-" + id, nil
}
