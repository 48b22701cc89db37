package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/comalice/actuatorx"
)

// commandStore is the producer side of the loop's command slot.
type commandStore interface {
	Store(actuatorx.CommandVector)
}

// parseCommand parses "thrust,pitch,roll,yaw". Fields may also be separated
// by whitespace.
func parseCommand(line string) (actuatorx.CommandVector, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) != 4 {
		return actuatorx.CommandVector{}, fmt.Errorf("want 4 fields, got %d", len(fields))
	}
	var v [4]float64
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return actuatorx.CommandVector{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		v[i] = x
	}
	return actuatorx.CommandVector{Thrust: v[0], Pitch: v[1], Roll: v[2], Yaw: v[3]}, nil
}

// readCommands stores each valid line of r until EOF. Blank lines and lines
// starting with '#' are skipped; malformed lines are logged and dropped.
func readCommands(r io.Reader, dst commandStore, logger *log.Logger) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c, err := parseCommand(line)
		if err != nil {
			logger.Printf("input line %d: %v", n, err)
			continue
		}
		dst.Store(c)
	}
	return sc.Err()
}
