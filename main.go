package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/vipnode/duplexrpc/internal/pretty"
	"github.com/vipnode/duplexrpc/jsonrpc2"
	"github.com/vipnode/duplexrpc/jsonrpc2/ws"
	"github.com/vipnode/duplexrpc/jsonrpc2/ws/gobwas"
	"github.com/vipnode/duplexrpc/jsonrpc2/ws/gorilla"
)

// Version of the binary, assigned during build.
var Version string = "dev"

var dialTimeout = time.Second * 5

// Options contains the flag options
type Options struct {
	Verbose []bool `short:"v" long:"verbose" description:"Show verbose logging."`
	Version bool   `long:"version" description:"Print version and exit."`

	Serve struct {
		Bind      string        `long:"bind" env:"DUPLEXRPC_BIND" description:"Address and port to listen on." default:"127.0.0.1:8080"`
		Timeout   time.Duration `long:"timeout" env:"DUPLEXRPC_TIMEOUT" description:"Deadline for calls back into clients." default:"60s"`
		Rate      float64       `long:"rate" env:"DUPLEXRPC_RATE" description:"Incoming calls per second per connection, 0 for unlimited."`
		Burst     int           `long:"burst" env:"DUPLEXRPC_BURST" description:"Burst size for --rate." default:"20"`
		WebSocket string        `long:"websocket" env:"DUPLEXRPC_WEBSOCKET" description:"Websocket implementation." choice:"gorilla" choice:"gobwas" default:"gorilla"`
		DebugRPC  bool          `long:"debug-rpc" description:"Log every message chunk."`
	} `command:"serve" description:"Serve the demo methods over HTTP and websocket."`

	Call struct {
		Args struct {
			URL    string   `positional-arg-name:"url" description:"Websocket URL of the server." required:"yes"`
			Method string   `positional-arg-name:"method" description:"Method to call." required:"yes"`
			Params []string `positional-arg-name:"params" description:"JSON values passed as positional params. Non-JSON values are sent as strings."`
		} `positional-args:"yes"`
		Named     bool          `long:"named" description:"Send the single param as a named-argument object."`
		Timeout   time.Duration `long:"timeout" env:"DUPLEXRPC_TIMEOUT" description:"Deadline for the call." default:"60s"`
		Name      string        `long:"name" env:"DUPLEXRPC_NAME" description:"Name this client reports to the server's whoami calls." default:"duplexrpc"`
		WebSocket string        `long:"websocket" env:"DUPLEXRPC_WEBSOCKET" description:"Websocket implementation." choice:"gorilla" choice:"gobwas" default:"gorilla"`
	} `command:"call" description:"Call a method on a duplexrpc server and print the result."`
}

const callUsage = `Examples:
* Echo a value:
  $ duplexrpc call ws://127.0.0.1:8080/ echo '{"hello": "world"}'

* Let the server call back into this client:
  $ duplexrpc call --name=Bob ws://127.0.0.1:8080/ greet
`

var logLevels = []log.Level{
	log.Warning,
	log.Info,
	log.Debug,
}

func dial(ctx context.Context, impl string, url string) (jsonrpc2.Transport, error) {
	if impl == "gobwas" {
		return gobwas.WebSocketDial(ctx, url)
	}
	return gorilla.WebSocketDial(ctx, url)
}

func upgrader(impl string) ws.Upgrader {
	if impl == "gobwas" {
		return &gobwas.Upgrader{}
	}
	return &gorilla.Upgrader{}
}

// callParams turns command line values into params. Values which are not
// valid JSON are sent as strings.
func callParams(args []string, named bool) (jsonrpc2.Params, error) {
	values := make([]interface{}, 0, len(args))
	for _, arg := range args {
		if json.Valid([]byte(arg)) {
			values = append(values, json.RawMessage(arg))
		} else {
			values = append(values, arg)
		}
	}
	if named {
		if len(values) != 1 {
			return jsonrpc2.Params{}, errors.New("--named takes exactly one param")
		}
		return jsonrpc2.Named(values[0])
	}
	return jsonrpc2.Positional(values...)
}

func newServer(options Options) (*server, error) {
	registry, err := jsonrpc2.NewRegistry(jsonrpc2.Receiver("", &DemoService{Started: time.Now()}))
	if err != nil {
		return nil, err
	}
	opts := options.Serve
	srv := &server{
		HTTPServer: jsonrpc2.HTTPServer{
			Registry:         registry,
			MaxContentLength: jsonrpc2.DefaultMaxChunk,
		},
		ws: ws.Handler{
			Upgrader: upgrader(opts.WebSocket),
			Config: func(r *http.Request) jsonrpc2.Config {
				cfg := jsonrpc2.Config{
					Registry:       registry,
					Timeout:        opts.Timeout,
					PendingLimit:   50,
					PendingDiscard: 10,
				}
				if opts.Rate > 0 {
					cfg.Limiter = rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst)
				}
				return cfg
			},
			OnConnect: func(r *http.Request, remote *jsonrpc2.Remote) {
				logger.Infof("Session started: %s", r.RemoteAddr)
			},
		},
		header: http.Header{
			"Access-Control-Allow-Origin": []string{"*"},
		},
	}
	if opts.DebugRPC {
		srv.ws.Upgrader = debugUpgrader{srv.ws.Upgrader}
	}
	return srv, nil
}

// debugUpgrader logs every chunk of upgraded sessions.
type debugUpgrader struct {
	ws.Upgrader
}

func (u debugUpgrader) Upgrade(r *http.Request, w http.ResponseWriter, h http.Header) (jsonrpc2.Transport, error) {
	transport, err := u.Upgrader.Upgrade(r, w, h)
	if err != nil {
		return nil, err
	}
	return jsonrpc2.DebugTransport(r.RemoteAddr, transport), nil
}

func call(ctx context.Context, options Options, out io.Writer) error {
	opts := options.Call
	params, err := callParams(opts.Args.Params, opts.Named)
	if err != nil {
		return ErrExplain{err, "Named params must be a single JSON object, such as '{\"b\": \"Bob\"}'."}
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	transport, err := dial(dialCtx, opts.WebSocket, opts.Args.URL)
	cancel()
	if err != nil {
		return ErrExplain{err, "Failed to connect to the duplexrpc server."}
	}
	remote, err := jsonrpc2.New(jsonrpc2.Config{
		Transport: transport,
		Handlers:  clientMethods(opts.Name),
		Timeout:   opts.Timeout,
	})
	if err != nil {
		transport.Close()
		return err
	}
	defer remote.Close()
	go remote.Serve()

	logger.Debugf("Calling %s with %s params", opts.Args.Method, params.Kind)
	c, err := remote.Go(opts.Args.Method, params, opts.Timeout)
	if err != nil {
		return err
	}
	var result json.RawMessage
	if err := c.Wait(ctx, &result); err != nil {
		return err
	}
	if result == nil {
		result = json.RawMessage("null")
	}
	logger.Debugf("Call %s returned: %s", c.ID, pretty.Abbrev(string(result), 64))
	_, err = fmt.Fprintf(out, "%s\n", result)
	return err
}

func subcommand(cmd string, options Options) error {
	switch cmd {
	case "serve":
		srv, err := newServer(options)
		if err != nil {
			return err
		}
		logger.Infof("Starting duplexrpc (version %s), listening on: ws://%s", Version, options.Serve.Bind)
		return http.ListenAndServe(options.Serve.Bind, srv)

	case "call":
		return call(context.Background(), options, os.Stdout)
	}

	return fmt.Errorf("unknown command: %s", cmd)
}

func main() {
	// Defaults for env-tagged flags may come from a .env file.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		exit(1, "failed to load .env: %s\n", err)
	}

	options := Options{}
	parser := flags.NewParser(&options, flags.Default)
	p, err := parser.Parse()
	if err != nil {
		if p == nil {
			fmt.Println(err)
		}
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp && parser.Active != nil {
			// Print additional usage help when run with --help
			switch parser.Active.Name {
			case "call":
				exit(0, callUsage)
			}
		}
		return
	}

	if options.Version {
		fmt.Println(Version)
		os.Exit(0)
	}

	// Figure out the log level
	numVerbose := len(options.Verbose)
	if numVerbose >= len(logLevels) {
		numVerbose = len(logLevels) - 1
	}

	logLevel := logLevels[numVerbose]
	logWriter := os.Stderr

	SetLogger(golog.New(logWriter, logLevel))
	if logLevel == log.Debug {
		// Enable logging from subpackages
		jsonrpc2.SetLogger(logWriter)
		ws.SetLogger(logWriter)
	}

	cmd := parser.Active.Name
	err = subcommand(cmd, options)
	if err == nil {
		return
	}
	exit(2, "%s failed: %s\n", cmd, explain(err))
}

// explain annotates err with a hint for the user, if it doesn't have one.
func explain(err error) error {
	if err == io.EOF || err == jsonrpc2.ErrClosed {
		return ErrExplain{err, "Connection closed."}
	}

	switch typedErr := err.(type) {
	case *jsonrpc2.TimeoutError:
		return ErrExplain{err, "The server did not reply in time. Try a longer --timeout?"}
	case net.Error:
		return ErrExplain{err, `Disconnected from server unexpectedly. Could be a connectivity issue or the server is down. Try again?`}
	case interface{ ErrorCode() int }:
		switch typedErr.ErrorCode() {
		case jsonrpc2.ErrCodeMethodNotFound:
			return ErrExplain{err, `The server does not have this method.`}
		case jsonrpc2.ErrCodeInvalidParams:
			return ErrExplain{err, `The method rejected its params, check their number and types.`}
		case jsonrpc2.ErrCodeRateLimited:
			return ErrExplain{err, `The server is rate limiting calls, try again later.`}
		}
		return ErrExplain{err, fmt.Sprintf(`The remote method failed (code %d).`, typedErr.ErrorCode())}
	case ErrExplain:
		// All good.
		return err
	}
	if strings.Contains(err.Error(), "bad handshake") {
		return ErrExplain{err, "The URL does not serve duplexrpc websockets."}
	}
	return ErrExplain{err, fmt.Sprintf(`Error type %T is missing an explanation.`, err)}
}

func exit(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}

// ErrExplain annotates an error with an explanation.
type ErrExplain struct {
	Cause       error
	Explanation string
}

func (err ErrExplain) Error() string {
	return fmt.Sprintf("%s\n -> %s", err.Cause, err.Explanation)
}
