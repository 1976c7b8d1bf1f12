// Package firmwareinfo exposes the ledger record to the firmware being built,
// as preprocessor definitions and as a small generated C library.
package firmwareinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rescale/fwrelease/internal/envview"
	"github.com/rescale/fwrelease/internal/models"
)

// Kind selects the C type of a macro.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
)

// Macro is one NAME=value definition. Value is already in C syntax: strings
// carry their quotes and numbers their suffix.
type Macro struct {
	Name  string
	Value string
	Kind  Kind
}

// Macros builds the ordered definition set for rec.
func Macros(rec *models.FirmwareRecord, prefix string, epoch time.Time) []Macro {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), "_")
	board := rec.BoardSymbol()
	name := func(s string) string { return prefix + "_" + s }

	macros := []Macro{
		{Name: name("VERSION"), Value: strconv.Quote(rec.FullTag()), Kind: KindString},
		{Name: name("VERSION_NUMBER"), Value: strconv.Itoa(rec.NumericVersion()), Kind: KindNumber},
		{Name: name("GMT_DATE"), Value: strconv.Quote(rec.BuildDate), Kind: KindString},
		{Name: name("EPOCH"), Value: strconv.FormatInt(epoch.Unix(), 10) + "UL", Kind: KindNumber},
		{Name: name("COMMIT"), Value: strconv.Quote(rec.GitCommit), Kind: KindString},
		{Name: name("BOARD_NAME"), Value: strconv.Quote(board), Kind: KindString},
	}
	if board != "" {
		macros = append(macros, Macro{Name: name("BOARD_" + strings.ToUpper(board)), Value: "1", Kind: KindBool})
	}
	return macros
}

// BuildFlags renders macros as compiler flags.
func BuildFlags(macros []Macro) []string {
	flags := make([]string, 0, len(macros))
	for _, m := range macros {
		flags = append(flags, fmt.Sprintf("-D %s=%s", m.Name, m.Value))
	}
	return flags
}

// Apply appends the flags for macros to sink.
func Apply(sink envview.FlagSink, macros []Macro) {
	for _, f := range BuildFlags(macros) {
		sink.AppendBuildFlag(f)
	}
}

const headerPreamble = `///
/// @file firmware_info.h
/// @brief Firmware Info (generated, do not edit)
///
#pragma once

#ifdef __cplusplus
extern "C" {
#endif

#include <stdint.h>
#include <stdbool.h>

`

const headerTrailer = `
#ifdef __cplusplus
}
#endif
`

// Render returns the contents of firmware_info.h and firmware_info.c. Every
// macro becomes a constant named with a "k" prefix.
func Render(macros []Macro) (header, source string) {
	width := 0
	for _, m := range macros {
		if n := len(symbol(m)); n > width {
			width = n
		}
	}

	var h, c strings.Builder
	h.WriteString(headerPreamble)
	c.WriteString("#include \"firmware_info.h\"\n\n")
	for _, m := range macros {
		sym := symbol(m)
		ctype := cType(m.Kind)
		fmt.Fprintf(&h, "extern const %-8s %s;\n", ctype, sym)
		fmt.Fprintf(&c, "const %-8s %-*s = %s;\n", ctype, width, sym, m.Value)
	}
	h.WriteString(headerTrailer)
	return h.String(), c.String()
}

// Write renders macros into dir/firmware_info.h and dir/firmware_info.c.
func Write(dir string, macros []Macro) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create firmware info directory %s: %w", dir, err)
	}
	header, source := Render(macros)
	if err := os.WriteFile(filepath.Join(dir, "firmware_info.h"), []byte(header), 0644); err != nil {
		return fmt.Errorf("failed to write firmware_info.h: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "firmware_info.c"), []byte(source), 0644); err != nil {
		return fmt.Errorf("failed to write firmware_info.c: %w", err)
	}
	return nil
}

func symbol(m Macro) string {
	if m.Kind == KindString {
		return "k" + m.Name + "[]"
	}
	return "k" + m.Name
}

func cType(k Kind) string {
	switch k {
	case KindString:
		return "char"
	case KindBool:
		return "bool"
	default:
		return "uint32_t"
	}
}
