package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog"
)

const defaultTimeFormat = time.RFC3339

// SSEPublisher is the part of sse.Server the writer needs.
type SSEPublisher interface {
	Publish(topic string, event *sse.Event)
}

// Formatter transforms one decoded event part into a display string.
type Formatter func(interface{}) string

// LogMessage is the JSON payload published on the "logs" stream.
type LogMessage struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (m LogMessage) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// SSEWriter decodes zerolog JSON events and republishes them as LogMessage
// payloads over server-sent events, console-writer style.
type SSEWriter struct {
	SSE        SSEPublisher
	TimeFormat string
	PartsOrder []string

	FormatTimestamp Formatter
	FormatLevel     Formatter
	FormatCaller    Formatter
	FormatMessage   Formatter
}

func NewSSEWriter(server SSEPublisher, options ...func(w *SSEWriter)) SSEWriter {
	w := SSEWriter{
		SSE:             server,
		TimeFormat:      defaultTimeFormat,
		PartsOrder:      defaultPartsOrder(),
		FormatTimestamp: defaultFormatTimestamp(defaultTimeFormat),
		FormatLevel:     defaultFormatLevel(),
		FormatCaller:    defaultFormatCaller(),
		FormatMessage:   defaultFormatMessage,
	}

	for _, opt := range options {
		opt(&w)
	}

	return w
}

func (w SSEWriter) Write(p []byte) (n int, err error) {
	if w.SSE == nil {
		return 0, nil
	}

	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	if err := d.Decode(&evt); err != nil {
		return 0, fmt.Errorf("cannot decode log event: %w", err)
	}

	var buf bytes.Buffer
	for _, part := range w.PartsOrder {
		// timestamp and level go to dedicated LogMessage fields
		if part == zerolog.TimestampFieldName || part == zerolog.LevelFieldName {
			continue
		}
		w.writePart(&buf, evt, part)
	}
	w.writeFields(&buf, evt)

	msg := LogMessage{
		Time:    w.FormatTimestamp(evt[zerolog.TimestampFieldName]),
		Level:   w.FormatLevel(evt[zerolog.LevelFieldName]),
		Message: strings.TrimSpace(buf.String()),
	}

	data, err := msg.Bytes()
	if err != nil {
		return 0, err
	}

	w.SSE.Publish("logs", &sse.Event{Data: data})

	return len(p), nil
}

// writePart appends a single named event part to the buffer.
func (w SSEWriter) writePart(buf *bytes.Buffer, evt map[string]interface{}, part string) {
	var s string

	switch part {
	case zerolog.TimestampFieldName:
		s = w.FormatTimestamp(evt[part])
	case zerolog.LevelFieldName:
		s = w.FormatLevel(evt[part])
	case zerolog.CallerFieldName:
		if _, ok := evt[part]; !ok {
			return
		}
		s = w.FormatCaller(evt[part])
	case zerolog.MessageFieldName:
		s = w.FormatMessage(evt[part])
	default:
		s = defaultFormatFieldValue(evt[part])
	}

	if s != "" {
		buf.WriteString(s)
		buf.WriteByte(' ')
	}
}

// writeFields appends every non-standard field as key=value, error first.
func (w SSEWriter) writeFields(buf *bytes.Buffer, evt map[string]interface{}) {
	fields := make([]string, 0, len(evt))
	for name := range evt {
		switch name {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName,
			zerolog.CallerFieldName, zerolog.MessageFieldName:
			continue
		}
		fields = append(fields, name)
	}
	sort.Strings(fields)

	for _, name := range fields {
		if name == zerolog.ErrorFieldName {
			buf.WriteString(defaultFormatErrFieldName()(name))
			buf.WriteString(defaultFormatErrFieldValue()(evt[name]))
		} else {
			buf.WriteString(defaultFormatFieldName()(name))
			buf.WriteString(quoted(defaultFormatFieldValue(evt[name])))
		}
		buf.WriteByte(' ')
	}
}

func defaultPartsOrder() []string {
	return []string{
		zerolog.TimestampFieldName,
		zerolog.LevelFieldName,
		zerolog.CallerFieldName,
		zerolog.MessageFieldName,
	}
}

func defaultFormatTimestamp(timeFormat string) Formatter {
	if timeFormat == "" {
		timeFormat = defaultTimeFormat
	}
	return func(i interface{}) string {
		switch tt := i.(type) {
		case string:
			ts, err := time.ParseInLocation(zerolog.TimeFieldFormat, tt, time.Local)
			if err != nil {
				return tt
			}
			return ts.Local().Format(timeFormat)
		case json.Number:
			i64, err := tt.Int64()
			if err != nil {
				return tt.String()
			}
			return time.Unix(i64, 0).Local().Format(timeFormat)
		default:
			return "<nil>"
		}
	}
}

func defaultFormatLevel() Formatter {
	return func(i interface{}) string {
		if ll, ok := i.(string); ok {
			switch ll {
			case zerolog.LevelTraceValue:
				return "TRC"
			case zerolog.LevelDebugValue:
				return "DBG"
			case zerolog.LevelInfoValue:
				return "INF"
			case zerolog.LevelWarnValue:
				return "WRN"
			case zerolog.LevelErrorValue:
				return "ERR"
			case zerolog.LevelFatalValue:
				return "FTL"
			case zerolog.LevelPanicValue:
				return "PNC"
			default:
				return ll
			}
		}
		if i == nil {
			return "???"
		}
		return strings.ToUpper(fmt.Sprintf("%s", i))[0:3]
	}
}

func defaultFormatCaller() Formatter {
	return func(i interface{}) string {
		var c string
		if cc, ok := i.(string); ok {
			c = cc
		}
		if c != "" {
			c = fmt.Sprintf("%s >", c)
		}
		return c
	}
}

func defaultFormatMessage(i interface{}) string {
	if i == nil {
		return ""
	}
	return fmt.Sprintf("%s", i)
}

func defaultFormatFieldName() Formatter {
	return func(i interface{}) string {
		return fmt.Sprintf("%s=", i)
	}
}

func defaultFormatFieldValue(i interface{}) string {
	if i == nil {
		return ""
	}
	return fmt.Sprintf("%v", i)
}

func defaultFormatErrFieldName() Formatter {
	return func(i interface{}) string {
		return fmt.Sprintf("%s=", i)
	}
}

func defaultFormatErrFieldValue() Formatter {
	return func(i interface{}) string {
		return fmt.Sprintf("%s=", quoted(fmt.Sprintf("%v", i)))
	}
}

func quoted(s string) string {
	if needsQuote(s) {
		return strconv.Quote(s)
	}
	return s
}

// needsQuote reports whether the value contains anything that would make the
// key=value form ambiguous.
func needsQuote(s string) bool {
	for i := range s {
		c := s[i]
		if c < 0x20 || c > 0x7e || c == ' ' || c == '\\' || c == '"' {
			return true
		}
	}
	return false
}

var _ io.Writer = SSEWriter{}
