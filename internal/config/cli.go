package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CLIConfig holds AppConfig plus the parsed subcommand and its arguments.
type CLIConfig struct {
	AppConfig
	Command     string
	DialogID    int64
	Blacklisted bool
}

// ParseCLI parses os.Args into a CLIConfig, using a flag.NewFlagSet per
// subcommand (backup, watch, list, blacklist).
func ParseCLI(appIDDef, appHashDef string) (*CLIConfig, error) {
	if len(os.Args) < 2 {
		return nil, fmt.Errorf("usage: tgsync <command> [flags]\nCommands: backup, watch, list, blacklist")
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)

	cfg := &CLIConfig{Command: cmd}

	fs.Int64Var(&cfg.DialogID, "dialog-id", 0, "ID of the dialog to act on (blacklist command)")
	fs.BoolVar(&cfg.Blacklisted, "blacklisted", true, "blacklist state to set (blacklist command)")
	fs.StringVar(&cfg.DataDir, "data-dir", "", "directory for the message store, checkpoint, registry and media (default: ./data)")
	fs.IntVar(&cfg.SyncDelay, "sync-delay-ms", 500, "delay between history batches, in milliseconds")
	fs.IntVar(&cfg.ExportDelay, "export-delay-ms", 0, "delay after each dialog's sync pass during backup, in milliseconds (0: no extra delay); history calls within a dialog are not delayed by it")
	fs.IntVar(&cfg.MediaQueueSize, "media-queue-size", 1000, "bounded media download queue capacity")
	fs.IntVar(&cfg.MediaParallelism, "media-parallelism", 3, "concurrent media downloads")
	fs.IntVar(&cfg.WatcherCycleSecs, "watcher-cycle-secs", 600, "seconds between watcher cycles")
	var keywords string
	fs.StringVar(&keywords, "watcher-keywords", "", "comma-separated keyword override for the watcher (default: built-in list)")
	fs.BoolVar(&cfg.NonInteractive, "non-interactive", false, "disable interactive prompts and progress bars")

	if err := fs.Parse(os.Args[2:]); err != nil {
		return nil, err
	}

	if keywords != "" {
		for _, k := range strings.Split(keywords, ",") {
			if k = strings.TrimSpace(k); k != "" {
				cfg.WatcherKeywords = append(cfg.WatcherKeywords, k)
			}
		}
	}

	appIDStr := os.Getenv("APP_ID")
	if appIDDef != "" {
		appIDStr = appIDDef
	}
	appHashStr := os.Getenv("APP_HASH")
	if appHashDef != "" {
		appHashStr = appHashDef
	}
	if appIDStr == "" || appHashStr == "" {
		return nil, fmt.Errorf("AppID and AppHash must be provided via ldflags or env vars (APP_ID/APP_HASH)")
	}

	var err error
	cfg.AppID, err = strconv.Atoi(appIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid AppID: %v", err)
	}
	cfg.AppHash = appHashStr

	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %v", err)
	}
	cfg.SessionPath = fmt.Sprintf("%s/session.json", cfg.DataDir)

	switch cmd {
	case "backup", "watch", "list", "blacklist":
		// blacklist with no --dialog-id falls through to interactive
		// dialog selection; non-interactive mode still requires it.
		if cmd == "blacklist" && cfg.DialogID == 0 && cfg.NonInteractive {
			return nil, fmt.Errorf("--dialog-id is required for the blacklist command in non-interactive mode")
		}
	default:
		return nil, fmt.Errorf("unknown command %q; commands: backup, watch, list, blacklist", cmd)
	}

	return cfg, nil
}
