package source

import (
	"io"
	"log/slog"
	"time"

	"github.com/elonfeng/trendpulse/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient() *httpclient.Client {
	return httpclient.New(testLogger())
}

func fastRequest() httpclient.Options {
	return httpclient.Options{Timeout: 2 * time.Second, Retries: 0}
}
