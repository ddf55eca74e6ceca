package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI 为 agentrouter migrate 子命令格式化输出
type CLI struct {
	runner Runner
	out    io.Writer
}

// NewCLI 创建 CLI，默认输出到 stdout
func NewCLI(runner Runner) *CLI {
	return &CLI{runner: runner, out: os.Stdout}
}

// SetOutput 设置输出目标
func (c *CLI) SetOutput(w io.Writer) {
	c.out = w
}

// Run 执行 up / down / status / version / goto N / force N
func (c *CLI) Run(ctx context.Context, cmd string, args ...string) error {
	switch cmd {
	case "up":
		if err := c.runner.Up(ctx); err != nil {
			return err
		}
		return c.printVersion(ctx, "Migrations complete.")
	case "down":
		if err := c.runner.Down(ctx); err != nil {
			return err
		}
		return c.printVersion(ctx, "Rollback complete.")
	case "goto":
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		if err := c.runner.Goto(ctx, uint(v)); err != nil {
			return err
		}
		return c.printVersion(ctx, "Migration complete.")
	case "force":
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		if err := c.runner.Force(ctx, v); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Version forced to %d\n", v)
		return nil
	case "version":
		return c.printVersion(ctx, "")
	case "status", "":
		return c.printStatus(ctx)
	default:
		return fmt.Errorf("unknown migrate command %q (want up|down|goto|force|version|status)", cmd)
	}
}

func versionArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one version argument")
	}
	var v int
	if _, err := fmt.Sscanf(args[0], "%d", &v); err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version %q", args[0])
	}
	return v, nil
}

func (c *CLI) printVersion(ctx context.Context, prefix string) error {
	version, dirty, err := c.runner.Version(ctx)
	if err != nil {
		return err
	}
	if prefix != "" {
		fmt.Fprint(c.out, prefix+" ")
	}
	if version == 0 {
		fmt.Fprintln(c.out, "No migrations applied.")
		return nil
	}
	fmt.Fprintf(c.out, "Current version: %d", version)
	if dirty {
		fmt.Fprint(c.out, " (dirty)")
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *CLI) printStatus(ctx context.Context) error {
	statuses, err := c.runner.Status(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	info, err := c.runner.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\nTotal: %d, Applied: %d, Pending: %d\n", info.Total, info.Applied, info.Pending)
	return nil
}
