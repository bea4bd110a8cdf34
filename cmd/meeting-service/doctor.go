package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"counselmeet-backend/pkg/config"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check encoder prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !runDoctor(cmd.OutOrStdout(), cfg) {
				return errors.New("some prerequisites are missing")
			}
			return nil
		},
	}
}

// runDoctor prints one line per check and reports whether all passed
func runDoctor(w io.Writer, cfg *config.Config) bool {
	ok := true
	check := func(name string, err error, detail string) {
		if err != nil {
			fmt.Fprintf(w, "  FAIL %s: %v\n", name, err)
			ok = false
			return
		}
		fmt.Fprintf(w, "  ok   %s: %s\n", name, detail)
	}

	path, err := exec.LookPath(cfg.Encoder.Binary)
	check("encoder binary", err, path)

	check("output directory", checkWritable(cfg.Encoder.OutputDir), cfg.Encoder.OutputDir)

	for _, backend := range []struct {
		name    string
		enabled bool
	}{
		{"cockroach", cfg.Database.Enabled},
		{"redis", cfg.Redis.Enabled},
		{"cassandra", cfg.Cassandra.Enabled},
		{"minio", cfg.MinIO.Enabled},
	} {
		state := "disabled"
		if backend.enabled {
			state = "enabled"
		}
		fmt.Fprintf(w, "  --   %s: %s\n", backend.name, state)
	}

	if ok {
		fmt.Fprintln(w, "\nAll prerequisites met.")
	} else {
		fmt.Fprintln(w, "\nSome prerequisites are missing.")
	}
	return ok
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
