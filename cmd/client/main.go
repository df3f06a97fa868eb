/*
A small command-line client for the marketstream server.

It issues control commands over HTTP and can tail the event stream over
WebSocket, printing one JSON event per line.

Usage:

	go run ./cmd/client -server=http://localhost:8880 start -symbol=BTCUSDT -timeframe=1m
	go run ./cmd/client status
	go run ./cmd/client symbols -market=futures_usdm
	go run ./cmd/client tail
	go run ./cmd/client stop
*/
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"marketstream/internal/model"
)

var serverURL = flag.String("server", "http://localhost:8880", "marketstream server base URL")

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	command := args[0]
	commandFlags := args[1:]

	var err error
	switch command {
	case "start":
		err = runStart(commandFlags)
	case "stop":
		err = postCommand("/api/market/stream/stop", nil)
	case "status":
		err = getCommand("/api/market/stream/status")
	case "symbols":
		err = runSymbols(commandFlags)
	case "tail":
		err = runTail()
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("command failed")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: client [-server=URL] <start|stop|status|symbols|tail> [flags]")
}

func runStart(args []string) error {
	flags := flag.NewFlagSet("start", flag.ExitOnError)
	market := flags.String("market", "", "market kind (spot, futures_usdm)")
	symbol := flags.String("symbol", "", "trading pair symbol")
	timeframe := flags.String("timeframe", "", "candle timeframe (1m, 5m, 1h, 4h, 1d, 1w, 1M)")
	emitInterval := flags.Int64("interval", 0, "emit interval in milliseconds")
	minNotional := flags.Float64("min-notional", -1, "minimum notional filter in USDT")
	mock := flags.Bool("mock", false, "use the deterministic mock generator")
	historyAll := flags.Bool("history-all", false, "paginate the full candle history")
	historyLimit := flags.Int64("history-limit", 0, "bootstrap candle count")
	perf := flags.Bool("perf", false, "enable perf telemetry events")
	if err := flags.Parse(args); err != nil {
		return err
	}

	request := model.StartStreamArgs{}
	if *market != "" {
		request.MarketKind = market
	}
	if *symbol != "" {
		request.Symbol = symbol
	}
	if *timeframe != "" {
		request.Timeframe = timeframe
	}
	if *emitInterval > 0 {
		request.EmitIntervalMs = emitInterval
	}
	if *minNotional >= 0 {
		request.MinNotionalUsdt = minNotional
	}
	if *mock {
		request.MockMode = mock
	}
	if *historyAll {
		request.HistoryAll = historyAll
	}
	if *historyLimit > 0 {
		request.HistoryLimit = historyLimit
	}
	if *perf {
		request.PerfTelemetry = perf
	}

	return postCommand("/api/market/stream/start", request)
}

func runSymbols(args []string) error {
	flags := flag.NewFlagSet("symbols", flag.ExitOnError)
	market := flags.String("market", "spot", "market kind (spot, futures_usdm)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	return getCommand("/api/market/symbols?marketKind=" + *market)
}

func postCommand(path string, payload any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	resp, err := http.Post(*serverURL+path, "application/json", body)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func getCommand(path string) error {
	resp, err := http.Get(*serverURL + path)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(data))
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}

// runTail streams events until interrupted, one JSON object per line.
func runTail() error {
	wsURL := strings.Replace(*serverURL, "http", "ws", 1) + "/api/market/events"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			fmt.Println(string(payload))
		}
	}()

	select {
	case <-interrupt:
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		return nil
	case err := <-done:
		return err
	}
}
