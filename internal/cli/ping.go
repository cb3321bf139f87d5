package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/danmuck/connprov/internal/config"
	"github.com/danmuck/connprov/internal/connprov"
	"github.com/danmuck/connprov/internal/localipc"
	"github.com/danmuck/connprov/internal/logging"
	"github.com/danmuck/connprov/internal/node"
	"github.com/danmuck/connprov/internal/plugins"
	"github.com/danmuck/connprov/internal/tcp"
	"github.com/spf13/cobra"
)

type pingOptions struct {
	kind           string
	count          int
	connectTimeout uint
	protocol       string
	secure         bool
	certFile       string
	keyFile        string
	caFile         string
	ipcName        string
	timeout        time.Duration
}

func newPingCmd() *cobra.Command {
	o := pingOptions{}
	cmd := &cobra.Command{
		Use:   "ping [endpoint] [strings...]",
		Short: "Send strings to a connprovd echo handler and print the reply",
		Long: `ping connects to endpoint ("host@port" for tcp, ignored for localipc),
sends the given strings as one echo request and prints what comes back.`,
		Example: `  connprovctl ping 127.0.0.1@6500 hello world
  connprovctl ping --type localipc "" hello`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items := args[1:]
			if len(items) == 0 {
				items = []string{"ping"}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			return runPing(ctx, cmd.OutOrStdout(), args[0], items, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.kind, "type", "t", config.TypeTCP, "provider type (tcp or localipc)")
	f.IntVarP(&o.count, "count", "c", 1, "number of requests to send")
	f.UintVar(&o.connectTimeout, "connect-timeout", 5000, "tcp ConnectTimeout in milliseconds")
	f.StringVar(&o.protocol, "protocol", string(tcp.ProtocolDual), "tcp Protocol (IPv4, IPv6, IPv4_IPv6)")
	f.BoolVar(&o.secure, "secure", false, "use TLS")
	f.StringVar(&o.certFile, "cert", "", "SSL/ServerCertificate file")
	f.StringVar(&o.keyFile, "key", "", "SSL/ServerKey file")
	f.StringVar(&o.caFile, "ca", "", "SSL/CACertificate file")
	f.StringVar(&o.ipcName, "ipc-name", "", "localipc IPCName suffix")
	f.DurationVar(&o.timeout, "timeout", 30*time.Second, "overall deadline")
	return cmd
}

func (o pingOptions) providerOptions() []connprov.Option {
	switch o.kind {
	case config.TypeLocalIPC:
		if o.ipcName == "" {
			return nil
		}
		return []connprov.Option{{Name: localipc.OptIPCName, Value: o.ipcName}}
	default:
		opts := []connprov.Option{
			{Name: tcp.OptConnectTimeout, Value: strconv.FormatUint(uint64(o.connectTimeout), 10)},
			{Name: tcp.OptProtocol, Value: o.protocol},
			{Name: tcp.OptSecure, Value: connprov.FormatBool(o.secure)},
		}
		for _, f := range []struct{ name, value string }{
			{tcp.OptServerCertificate, o.certFile},
			{tcp.OptServerKey, o.keyFile},
			{tcp.OptCACertificate, o.caFile},
		} {
			if f.value != "" {
				opts = append(opts, connprov.Option{Name: f.name, Value: f.value})
			}
		}
		return opts
	}
}

func newOutbound(o pingOptions) (connprov.Provider, error) {
	logger := logging.Component("connprovctl")
	return plugins.Construct(o.kind, connprov.ConstructInfo{
		Name:    "ping",
		Mode:    connprov.ModeOutbound,
		Options: o.providerOptions(),
		Logger:  &logger,
	})
}

func runPing(ctx context.Context, out io.Writer, endpoint string, items []string, o pingOptions) (err error) {
	if o.count < 1 {
		return errors.New("count must be at least 1")
	}
	p, err := newOutbound(o)
	if err != nil {
		return err
	}
	if err := p.Start(nil, nil); err != nil {
		_ = p.Close()
		return err
	}
	defer func() {
		_ = p.Stop()
		err = errors.Join(err, p.Close())
	}()

	for i := 0; i < o.count; i++ {
		start := time.Now()
		conn, err := p.Connect(ctx, endpoint)
		if err != nil {
			return err
		}
		got, err := node.EchoRequest(conn, items)
		_ = conn.Close()
		if err != nil {
			return err
		}
		logical, physical := conn.PeerNetworkIDs()
		fmt.Fprintf(out, "reply from %s (%s): %d strings in %s\n", logical, physical, len(got), time.Since(start).Round(time.Microsecond))
		for _, s := range got {
			fmt.Fprintf(out, "  %q\n", s)
		}
	}
	return nil
}
