package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName はすべてのログ行に付与するサービス名。
const ServiceName = "messenger"

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。未知の値はInfoとして扱う。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// 出力にはservice属性が常に含まれる。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler).With(slog.String("service", ServiceName))
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// wがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer, level string) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, ParseLevel(level)))
}
