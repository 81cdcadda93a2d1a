package cli

import (
	"os"

	"github.com/cockroachdb/errors"

	"github.com/mesh-intelligence/piilink/internal/audit"
	"github.com/mesh-intelligence/piilink/internal/logging"
	"github.com/mesh-intelligence/piilink/internal/paths"
	"github.com/mesh-intelligence/piilink/internal/pipeline"
	"github.com/mesh-intelligence/piilink/pkg/sqlite"
	"github.com/mesh-intelligence/piilink/pkg/types"
)

// app is the state shared by the subcommands of one invocation.
type app struct {
	flags *rootFlags

	cfg       types.Config
	configDir string
	auditDir  string
}

// load resolves directories, reads config.yaml and starts logging.
func (a *app) load() error {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return errors.Wrap(err, "resolving config directory")
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	cfg, err := decodeConfig(v)
	if err != nil {
		return err
	}

	cfg.DataDir, err = paths.ResolveDataDir(a.flags.dataDir, cfg.DataDir)
	if err != nil {
		return errors.Wrap(err, "resolving data directory")
	}
	auditDir, err := paths.ResolveAuditDir(cfg.Audit.Dir, cfg.DataDir)
	if err != nil {
		return errors.Wrap(err, "resolving audit directory")
	}
	cfg.User = resolveUser(a.flags.user, cfg.User)

	if err := logging.Initialize(logging.Options{
		Level: cfg.Log.Level,
		JSON:  cfg.Log.JSON,
		File:  cfg.Log.File,
	}); err != nil {
		return errors.Wrap(err, "initializing logging")
	}

	a.cfg, a.configDir, a.auditDir = cfg, configDir, auditDir
	return nil
}

// resolveUser picks flag > config > $USER > pipeline.DefaultUser.
func resolveUser(flag, configValue string) string {
	for _, u := range []string{flag, configValue, os.Getenv("USER")} {
		if u != "" {
			return u
		}
	}
	return pipeline.DefaultUser
}

// openStore opens the entity store. The caller must Close it.
func (a *app) openStore() (types.EntityStore, error) {
	s, err := sqlite.Open(a.cfg)
	if err != nil {
		return nil, errors.Wrap(err, "opening entity store")
	}
	return s, nil
}

// auditLog opens the audit directory.
func (a *app) auditLog() (*audit.FileLog, error) {
	return audit.NewFileLog(a.auditDir, logging.ComponentLogger("audit"))
}

// recorder returns the audit log for writing. When the audit directory
// cannot be opened the operation still runs; every Record then fails and
// is logged as a failed audit write.
func (a *app) recorder() audit.Recorder {
	log, err := a.auditLog()
	if err != nil {
		logging.ComponentLogger("audit").Warnw("Audit log unavailable",
			logging.FieldPath, a.auditDir, logging.FieldError, err)
		return brokenLog{err: err}
	}
	return log
}

// brokenLog reports the error that kept the audit log from opening.
type brokenLog struct{ err error }

func (b brokenLog) Record(audit.Entry) error { return b.err }

// service opens the store and returns a Service over it and the audit log,
// with a func that closes the store.
func (a *app) service() (*pipeline.Service, func(), error) {
	store, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}
	svc := pipeline.NewService(store, a.recorder(), a.cfg.User, logging.ComponentLogger("pipeline"))
	return svc, func() { store.Close() }, nil
}
