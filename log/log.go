/* Copyright (c) 2018 Jason Ish
 * All rights reserved.
 *
 * Redistribution and use in source and binary forms, with or without
 * modification, are permitted provided that the following conditions
 * are met:
 *
 * 1. Redistributions of source code must retain the above copyright
 *    notice, this list of conditions and the following disclaimer.
 * 2. Redistributions in binary form must reproduce the above copyright
 *    notice, this list of conditions and the following disclaimer in the
 *    documentation and/or other materials provided with the distribution.
 *
 * THIS SOFTWARE IS PROVIDED ``AS IS'' AND ANY EXPRESS OR IMPLIED
 * WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
 * DISCLAIMED. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY DIRECT,
 * INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES
 * (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
 * SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
 * HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT,
 * STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING
 * IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
 * POSSIBILITY OF SUCH DAMAGE.
 */

package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

type LogLevel int

const (
	ERROR LogLevel = iota
	WARNING
	INFO
	DEBUG
)

// Fields are structured key/values attached to a log message.
type Fields map[string]interface{}

const (
	GREEN   = "\x1b[32m"
	BLUE    = "\x1b[34m"
	REDB    = "\x1b[1;31m"
	YELLOW  = "\x1b[33m"
	RED     = "\x1b[31m"
	YELLOWB = "\x1b[1;33m"
	RESET   = "\x1b[0m"
)

// Keys used to carry the caller location through to the formatter.
const (
	callerFileKey = "__file"
	callerLineKey = "__line"
)

var logger = logrus.New()

func init() {
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&formatter{color: true})
	logger.SetLevel(logrus.InfoLevel)
}

func Green(v interface{}) string {
	return fmt.Sprintf("%s%v%s", GREEN, v, RESET)
}

func Blue(v interface{}) string {
	return fmt.Sprintf("%s%v%s", BLUE, v, RESET)
}

func Yellow(v interface{}) string {
	return fmt.Sprintf("%s%v%s", YELLOW, v, RESET)
}

func Red(v interface{}) string {
	return fmt.Sprintf("%s%v%s", RED, v, RESET)
}

type formatter struct {
	color bool
}

func (f *formatter) paint(fn func(interface{}) string, v interface{}) string {
	if !f.color {
		return fmt.Sprint(v)
	}
	return fn(v)
}

func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	var level string
	message := entry.Message
	switch entry.Level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		level = f.paint(Red, "Error")
		message = f.paint(Red, message)
	case logrus.WarnLevel:
		level = f.paint(Yellow, "Warning")
	case logrus.DebugLevel, logrus.TraceLevel:
		level = f.paint(Yellow, "Debug")
	default:
		level = f.paint(Blue, "Info")
	}

	file, _ := entry.Data[callerFileKey].(string)
	line, _ := entry.Data[callerLineKey].(int)

	fmt.Fprintf(b, "%s (%s:%s) <%s> -- %s",
		f.paint(Green, entry.Time.Format("2006-01-02 15:04:05")),
		f.paint(Blue, file),
		f.paint(Green, line),
		level,
		message)

	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		if strings.HasPrefix(key, "__") {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(b, " %s=%v", key, entry.Data[key])
	}
	b.WriteByte('\n')

	return b.Bytes(), nil
}

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case ERROR:
		return logrus.ErrorLevel
	case WARNING:
		return logrus.WarnLevel
	case DEBUG:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

func SetLevel(level LogLevel) {
	logger.SetLevel(toLogrusLevel(level))
}

// ParseLevel converts a level name as found in configuration files.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(name) {
	case "error":
		return ERROR, nil
	case "warn", "warning":
		return WARNING, nil
	case "info", "":
		return INFO, nil
	case "debug":
		return DEBUG, nil
	}
	return INFO, fmt.Errorf("unknown log level: %s", name)
}

// SetOutput redirects log output, disabling color when the destination
// is not stderr.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
	logger.SetFormatter(&formatter{color: w == os.Stderr})
}

func IsDebug() bool {
	return logger.IsLevelEnabled(logrus.DebugLevel)
}

func doLog(calldepth int, level LogLevel, fields Fields, format string, v ...interface{}) {
	lvl := toLogrusLevel(level)
	if !logger.IsLevelEnabled(lvl) {
		return
	}

	_, filename, line, _ := runtime.Caller(calldepth)

	data := logrus.Fields{
		callerFileKey: filepath.Base(filename),
		callerLineKey: line,
	}
	for key, val := range fields {
		data[key] = val
	}

	logger.WithFields(data).Log(lvl, fmt.Sprintf(format, v...))
}

func Error(format string, v ...interface{}) {
	doLog(2, ERROR, nil, format, v...)
}

func Warning(format string, v ...interface{}) {
	doLog(2, WARNING, nil, format, v...)
}

func Info(format string, v ...interface{}) {
	doLog(2, INFO, nil, format, v...)
}

func Debug(format string, v ...interface{}) {
	doLog(2, DEBUG, nil, format, v...)
}

func InfoWithFields(fields Fields, format string, v ...interface{}) {
	doLog(2, INFO, fields, format, v...)
}

func WarningWithFields(fields Fields, format string, v ...interface{}) {
	doLog(2, WARNING, fields, format, v...)
}

// Promote to info...
func Println(v ...interface{}) {
	doLog(2, INFO, nil, "%s", fmt.Sprint(v...))
}

// To be compatible with standard logging, promote to info.
func Printf(format string, v ...interface{}) {
	doLog(2, INFO, nil, format, v...)
}

func Fatal(v ...interface{}) {
	doLog(2, ERROR, nil, "%s", fmt.Sprint(v...))
	os.Exit(1)
}
