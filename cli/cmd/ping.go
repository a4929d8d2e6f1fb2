package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/xrayview/cli/render"
)

// PingResponse is the response for the ping command.
type PingResponse struct {
	Origin    string `json:"origin" yaml:"origin"`
	Message   string `json:"message" yaml:"message"`
	LatencyMs int64  `json:"latency_ms" yaml:"latency_ms"`
}

// PingCommand returns the ping command.
func PingCommand() *cli.Command {
	return &cli.Command{
		Name:   "ping",
		Usage:  "Check that the analysis backend is reachable",
		Flags:  append(OutputFlags(), &cli.DurationFlag{Name: "timeout", Usage: "Request timeout", Value: 5 * time.Second}),
		Action: pingAction,
	}
}

func pingAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	s, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	client, err := s.client()
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	start := time.Now()
	msg, err := client.Ping(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("%s: %v", client.Origin(), err), exitFailure)
	}
	return r.Render(PingResponse{
		Origin:    client.Origin(),
		Message:   msg,
		LatencyMs: time.Since(start).Milliseconds(),
	})
}
