package filestore

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jrsteele09/go-credential-pool/credentials"
	"github.com/jrsteele09/go-credential-pool/credentials/sealer"
	"github.com/jrsteele09/go-credential-pool/internal/config"
	errs "github.com/jrsteele09/go-credential-pool/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	fieldSeparator = ","
	maxLineBytes   = 1 << 20
	fileMode       = 0o600
)

var _ credentials.Store = (*Store)(nil)

// Store keeps each collection in its own file, one "subject,access,refresh"
// line per record. Replacements are written to a temp file in the same
// directory, fsynced and renamed over the target.
type Store struct {
	primaryPath   string
	refreshedPath string
	sealer        *sealer.Sealer
	logger        zerolog.Logger
	mu            sync.Mutex // serialises writers
}

type Option func(*Store)

// WithSealer encrypts every stored line
func WithSealer(s *sealer.Sealer) Option {
	return func(fs *Store) {
		fs.sealer = s
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(fs *Store) {
		fs.logger = l
	}
}

func New(primaryPath, refreshedPath string, opts ...Option) *Store {
	s := &Store{
		primaryPath:   primaryPath,
		refreshedPath: refreshedPath,
		logger:        log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig builds a store from the configured paths and optional seal key
func NewFromConfig(cfg config.StoreConfig, opts ...Option) (*Store, error) {
	key, err := cfg.GetSealKey()
	if err != nil {
		return nil, fmt.Errorf("[filestore NewFromConfig] %w", err)
	}
	if key != nil {
		opts = append(opts, WithSealer(sealer.New(key)))
	}
	return New(cfg.GetPrimaryPath(), cfg.GetRefreshedPath(), opts...), nil
}

func (s *Store) LoadAll(_ context.Context) ([]credentials.Record, error) {
	return s.load(s.primaryPath)
}

func (s *Store) LoadRefreshedPool(_ context.Context) ([]credentials.Record, error) {
	return s.load(s.refreshedPath)
}

func (s *Store) ReplaceAll(_ context.Context, records []credentials.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replace(s.primaryPath, records)
}

func (s *Store) ReplaceRefreshedPool(_ context.Context, records []credentials.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replace(s.refreshedPath, records)
}

// Commit stages both files before renaming either one, so a failed encode
// or write leaves both collections as they were. The previous primary file
// is kept aside until the refreshed pool is in place and is restored if
// that second rename fails.
func (s *Store) Commit(_ context.Context, primary, refreshed []credentials.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	primaryTmp, err := s.stage(s.primaryPath, primary)
	if err != nil {
		return err
	}
	refreshedTmp, err := s.stage(s.refreshedPath, refreshed)
	if err != nil {
		_ = os.Remove(primaryTmp)
		return err
	}
	backup, err := s.backup(s.primaryPath)
	if err != nil {
		_ = os.Remove(primaryTmp)
		_ = os.Remove(refreshedTmp)
		return err
	}

	if err := os.Rename(primaryTmp, s.primaryPath); err != nil {
		_ = os.Remove(primaryTmp)
		_ = os.Remove(refreshedTmp)
		s.discard(backup)
		return errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[filestore Commit] rename %s: %w", s.primaryPath, err))
	}
	if err := os.Rename(refreshedTmp, s.refreshedPath); err != nil {
		_ = os.Remove(refreshedTmp)
		cause := fmt.Errorf("[filestore Commit] rename %s: %w", s.refreshedPath, err)
		if rbErr := s.restore(backup); rbErr != nil {
			cause = errors.Join(cause, rbErr)
		}
		return errs.Join(errs.ErrStoreUnavailable, cause)
	}
	s.discard(backup)
	return nil
}

// backup copies the current contents of path to a temp file. An empty name
// means the file did not exist.
func (s *Store) backup(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[filestore backup] read %s: %w", path, err))
	}
	return s.writeTemp(path, data)
}

// restore puts the primary file back the way backup found it
func (s *Store) restore(backup string) error {
	if backup == "" {
		if err := os.Remove(s.primaryPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("[filestore restore] remove %s: %w", s.primaryPath, err)
		}
		return nil
	}
	if err := os.Rename(backup, s.primaryPath); err != nil {
		s.logger.Error().Err(err).Str("backup", backup).Msg("primary store could not be rolled back, backup kept")
		return fmt.Errorf("[filestore restore] rename %s: %w", backup, err)
	}
	return nil
}

func (s *Store) discard(backup string) {
	if backup != "" {
		_ = os.Remove(backup)
	}
}

func (s *Store) Upsert(_ context.Context, record credentials.Record) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("[filestore Upsert] %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(s.primaryPath)
	if err != nil {
		return err
	}
	return s.replace(s.primaryPath, credentials.Upsert(records, record))
}

func (s *Store) load(path string) ([]credentials.Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []credentials.Record{}, nil
	}
	if err != nil {
		return nil, errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[filestore load] read %s: %w", path, err))
	}

	records := make([]credentials.Record, 0)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, err := s.decodeLine(line)
		if err != nil {
			// Kept so the refresh pass can count it as a tagged failure.
			s.logger.Warn().Err(err).Str("file", filepath.Base(path)).Int("line", lineNo).Msg("unparseable credential line")
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[filestore load] scan %s: %w", path, err))
	}
	return records, nil
}

func (s *Store) replace(path string, records []credentials.Record) error {
	tmp, err := s.stage(path, records)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[filestore replace] rename %s: %w", path, err))
	}
	return nil
}

// stage writes records to a synced temp file next to path and returns its name
func (s *Store) stage(path string, records []credentials.Record) (string, error) {
	var buf bytes.Buffer
	for _, rec := range records {
		line, err := s.encodeLine(rec)
		if err != nil {
			return "", err
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return s.writeTemp(path, buf.Bytes())
}

func (s *Store) writeTemp(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[filestore writeTemp] mkdir %s: %w", dir, err))
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[filestore writeTemp] create temp: %w", err))
	}
	tmp := f.Name()
	cleanup := func(cause error) (string, error) {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[filestore writeTemp] %s: %w", tmp, cause))
	}
	if _, err := f.Write(data); err != nil {
		return cleanup(err)
	}
	if err := f.Chmod(fileMode); err != nil {
		return cleanup(err)
	}
	if err := f.Sync(); err != nil {
		return cleanup(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", errs.Join(errs.ErrStoreUnavailable, fmt.Errorf("[filestore writeTemp] close %s: %w", tmp, err))
	}
	return tmp, nil
}

func (s *Store) encodeLine(rec credentials.Record) (string, error) {
	for _, field := range []string{rec.SubjectID, rec.AccessToken, rec.RefreshToken} {
		if strings.ContainsAny(field, ",\r\n") {
			return "", fmt.Errorf("[filestore encodeLine] %w: field of %q contains a separator", errs.ErrUnparseableRecord, rec.SubjectID)
		}
	}
	line := strings.Join([]string{rec.SubjectID, rec.AccessToken, rec.RefreshToken}, fieldSeparator)
	if s.sealer == nil {
		return line, nil
	}
	sealed, err := s.sealer.Seal([]byte(line))
	if err != nil {
		return "", errs.Join(errs.ErrStoreUnavailable, err)
	}
	return sealed, nil
}

// decodeLine always returns a record. When the line is damaged the record
// carries whatever could be recovered and fails Record.Validate.
func (s *Store) decodeLine(line string) (credentials.Record, error) {
	if s.sealer != nil {
		plain, err := s.sealer.Open(line)
		if err != nil {
			return credentials.Record{}, fmt.Errorf("%w: %w", errs.ErrUnparseableRecord, err)
		}
		line = string(plain)
	}

	fields := strings.Split(line, fieldSeparator)
	if len(fields) != 3 {
		return credentials.Record{SubjectID: strings.TrimSpace(fields[0])},
			fmt.Errorf("%w: expected 3 fields, got %d", errs.ErrUnparseableRecord, len(fields))
	}
	return credentials.Record{
		SubjectID:    strings.TrimSpace(fields[0]),
		AccessToken:  strings.TrimSpace(fields[1]),
		RefreshToken: strings.TrimSpace(fields[2]),
	}, nil
}
