package packager

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/rescale/fwrelease/internal/constants"
	"github.com/rescale/fwrelease/internal/util/cmdquote"
)

// Markers delimiting the upload command inside the launchers. Field tools
// look for them to patch a release by hand.
const (
	batchBeginMarker = "Rem begin pio upload command"
	batchEndMarker   = "Rem end pio upload command"
	shellBeginMarker = "# begin pio upload command"
	shellEndMarker   = "# end pio upload command"
)

var batchTemplate = template.Must(template.New("batch").Parse(`@echo off
Rem Terminal Setup
color F0
cls
title "Uploading Firmware {{.Tag}}"

Rem Global Variables
set POWERSHELL_DIR="%Windir%\System32\WindowsPowerShell\v1.0\Powershell.exe"

Rem Finding Python
set PIO_PYTHON_DIR="%HOMEDRIVE%%HOMEPATH%\.platformio\penv\Scripts\python.exe"
set PYTHON_DIR=%PIO_PYTHON_DIR%
if not exist %PIO_PYTHON_DIR% (set PYTHON_DIR="python")

Rem Uploading Firmware
if exist "bin" (
	cd "bin"
) else (
	CALL :fun_echo_red "Folder \"bin\" not found!"
	pause
	exit
)

` + batchBeginMarker + `
{{.Command}}
` + batchEndMarker + `
if errorlevel 1 CALL :fun_echo_red "Upload failed!"

Rem end of upload script
echo.
pause

Rem Function Print in Red
EXIT /B %ERRORLEVEL%
:fun_echo_red
	echo.
	if exist %POWERSHELL_DIR% (
		%POWERSHELL_DIR% write-host -foregroundcolor Red %1
	) else (
		echo %1
	)
	echo.
EXIT /B 0
`))

var shellTemplate = template.Must(template.New("shell").Parse(`#!/bin/sh
# Uploading Firmware {{.Tag}}

echo_red() {
	if [ -t 1 ]; then
		printf '\033[31m%s\033[0m\n' "$1"
	else
		printf '%s\n' "$1"
	fi
}

# Finding Python
PYTHON="${PYTHON:-$HOME/.platformio/penv/bin/python}"
if [ ! -x "$PYTHON" ]; then
	PYTHON=python3
fi

cd "$(dirname "$0")" || exit 1
if [ ! -d bin ]; then
	echo_red 'Folder "bin" not found!'
	exit 1
fi
cd bin || exit 1

` + shellBeginMarker + `
{{.Command}}
` + shellEndMarker + `
status=$?
if [ "$status" -ne 0 ]; then
	echo_red "Upload failed!"
fi

printf 'Press Enter to continue...'
read -r _
exit "$status"
`))

type scriptData struct {
	Tag     string
	Command string
}

// interpreterNames are the words replaced by the launcher's own interpreter lookup.
var interpreterNames = map[string]bool{
	"python":      true,
	"python3":     true,
	"python.exe":  true,
	"python3.exe": true,
}

// launcherCommand turns a resolved upload command into one the technician
// can run: the serial port is chosen at flash time, and the build machine's
// interpreter is replaced by the launcher's.
func launcherCommand(cmd, interpreter string) string {
	cmd = strings.ReplaceAll(cmd, "--port ", "")
	cmd = strings.ReplaceAll(cmd, "$UPLOAD_PORT", "")
	cmd = cmdquote.Normalize(cmd)
	cmd = cmdquote.RemoveArg(cmd, "--port")

	words := strings.Split(cmd, " ")
	for i, w := range words {
		name := strings.ToLower(strings.Trim(w, `"'`))
		if j := strings.LastIndexAny(name, `/\`); j >= 0 {
			name = name[j+1:]
		}
		if interpreterNames[name] {
			words[i] = interpreter
		}
	}
	return strings.Join(words, " ")
}

// writeScripts renders both launchers into outDir.
func writeScripts(outDir, tag, cmd string) error {
	scripts := []struct {
		name        string
		tmpl        *template.Template
		interpreter string
		crlf        bool
		mode        os.FileMode
	}{
		{constants.BatchScriptName, batchTemplate, "%PYTHON_DIR%", true, 0644},
		{constants.ShellScriptName, shellTemplate, `"$PYTHON"`, false, 0755},
	}

	for _, s := range scripts {
		var buf bytes.Buffer
		data := scriptData{Tag: tag, Command: launcherCommand(cmd, s.interpreter)}
		if err := s.tmpl.Execute(&buf, data); err != nil {
			return fmt.Errorf("failed to render %s: %w", s.name, err)
		}
		content := buf.String()
		if s.crlf {
			content = strings.ReplaceAll(content, "\n", "\r\n")
		}
		path := filepath.Join(outDir, s.name)
		if err := os.WriteFile(path, []byte(content), s.mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

// ExtractCommand returns the upload command embedded in a launcher script.
func ExtractCommand(script string) (string, bool) {
	script = strings.ReplaceAll(script, "\r\n", "\n")
	for _, m := range [][2]string{{batchBeginMarker, batchEndMarker}, {shellBeginMarker, shellEndMarker}} {
		start := strings.Index(script, m[0]+"\n")
		if start < 0 {
			continue
		}
		start += len(m[0]) + 1
		end := strings.Index(script[start:], "\n"+m[1])
		if end < 0 {
			continue
		}
		return script[start : start+end], true
	}
	return "", false
}
