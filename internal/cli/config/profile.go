package config

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
	"gopkg.in/yaml.v3"

	"github.com/yndnr/sidus-go/internal/cli/connection"
	"github.com/yndnr/sidus-go/pkg/crypto/adaptive"
)

var (
	// ErrProfileNotFound is returned for an unknown profile name.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrInvalidProfileName is returned for an empty or malformed name.
	ErrInvalidProfileName = errors.New("invalid profile name")

	// ErrNoCurrentProfile is returned when no profile has been selected.
	ErrNoCurrentProfile = errors.New("no current profile")
)

const (
	sealedPrefix = "sealed:"
	localKeySize = 32
	sealInfo     = "sidus profile secrets v1"
)

type storedProfile struct {
	URL       string `yaml:"url,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	NodeID    string `yaml:"node_id,omitempty"`
}

type profileFile struct {
	Current  string                   `yaml:"current,omitempty"`
	Profiles map[string]storedProfile `yaml:"profiles"`
}

// Store persists named device profiles in a YAML file. Secret keys are
// sealed with a key derived from a local key file, created on first use.
type Store struct {
	path    string
	keyPath string

	mu sync.Mutex
}

// NewStore creates a store. Empty paths select the defaults under ~/.sidus.
func NewStore(path, keyPath string) *Store {
	if path == "" {
		path = DefaultProfilePath()
	}
	if keyPath == "" {
		keyPath = DefaultKeyPath()
	}
	return &Store{path: path, keyPath: keyPath}
}

// Path returns the profile file path.
func (s *Store) Path() string {
	return s.path
}

// List returns all profiles sorted by name, and the current profile name.
// Secret keys are returned opened.
func (s *Store) List() ([]connection.Profile, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return nil, "", err
	}

	names := make([]string, 0, len(f.Profiles))
	for name := range f.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	profiles := make([]connection.Profile, 0, len(names))
	for _, name := range names {
		p, err := s.open(name, f.Profiles[name])
		if err != nil {
			return nil, "", err
		}
		profiles = append(profiles, p)
	}
	return profiles, f.Current, nil
}

// Get returns the named profile.
func (s *Store) Get(name string) (connection.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return connection.Profile{}, err
	}
	sp, ok := f.Profiles[name]
	if !ok {
		return connection.Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return s.open(name, sp)
}

// Current returns the selected profile, or ErrNoCurrentProfile.
func (s *Store) Current() (connection.Profile, error) {
	s.mu.Lock()
	f, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return connection.Profile{}, err
	}
	if f.Current == "" {
		return connection.Profile{}, ErrNoCurrentProfile
	}
	return s.Get(f.Current)
}

// Add saves p, replacing any profile with the same name. The first profile
// saved becomes current.
func (s *Store) Add(p connection.Profile) error {
	if err := validateName(p.Name); err != nil {
		return err
	}
	if p.URL != "" {
		if err := connection.ValidateEndpoint(p.URL); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return err
	}

	sp := storedProfile{URL: p.URL, NodeID: p.NodeID}
	if p.SecretKey != "" {
		sealed, err := s.seal(p.Name, p.SecretKey)
		if err != nil {
			return err
		}
		sp.SecretKey = sealed
	}

	f.Profiles[p.Name] = sp
	if f.Current == "" {
		f.Current = p.Name
	}
	return s.write(f)
}

// Use makes name the current profile.
func (s *Store) Use(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := f.Profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	f.Current = name
	return s.write(f)
}

// Remove deletes the named profile. Removing the current profile leaves
// none selected.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := f.Profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	delete(f.Profiles, name)
	if f.Current == name {
		f.Current = ""
	}
	return s.write(f)
}

func (s *Store) read() (*profileFile, error) {
	f := &profileFile{Profiles: make(map[string]storedProfile)}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", s.path, err)
	}
	if f.Profiles == nil {
		f.Profiles = make(map[string]storedProfile)
	}
	return f, nil
}

// write replaces the file atomically with owner-only permissions.
func (s *Store) write(f *profileFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode profiles: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".cli-*.yaml")
	if err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write profiles: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("write profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *Store) open(name string, sp storedProfile) (connection.Profile, error) {
	p := connection.Profile{Name: name, URL: sp.URL, NodeID: sp.NodeID}
	if sp.SecretKey == "" {
		return p, nil
	}
	secret, err := s.unseal(name, sp.SecretKey)
	if err != nil {
		return connection.Profile{}, fmt.Errorf("profile %s: %w", name, err)
	}
	p.SecretKey = secret
	return p, nil
}

// seal encrypts secret bound to the profile name. The stored form is
// "sealed:<cipher>:<base64>" so a store stays readable on a host that
// would pick a different cipher.
func (s *Store) seal(name, secret string) (string, error) {
	c, err := s.cipher("")
	if err != nil {
		return "", err
	}
	ct, err := c.Encrypt([]byte(secret), []byte(name))
	if err != nil {
		return "", fmt.Errorf("seal secret: %w", err)
	}
	return sealedPrefix + string(c.Type()) + ":" + base64.StdEncoding.EncodeToString(ct), nil
}

func (s *Store) unseal(name, stored string) (string, error) {
	rest, ok := strings.CutPrefix(stored, sealedPrefix)
	if !ok {
		// Hand-edited plaintext.
		return stored, nil
	}
	cipherType, encoded, ok := strings.Cut(rest, ":")
	if !ok {
		return "", errors.New("malformed sealed secret")
	}
	ct, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("malformed sealed secret: %w", err)
	}

	c, err := s.cipher(adaptive.CipherType(cipherType))
	if err != nil {
		return "", err
	}
	pt, err := c.Decrypt(ct, []byte(name))
	if err != nil {
		return "", fmt.Errorf("unseal secret (was %s replaced?): %w", s.keyPath, err)
	}
	return string(pt), nil
}

// cipher returns the sealing cipher; an empty type selects by hardware.
func (s *Store) cipher(t adaptive.CipherType) (adaptive.Cipher, error) {
	local, err := s.localKey()
	if err != nil {
		return nil, err
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, local, nil, []byte(sealInfo)), key); err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}
	if t == "" {
		return adaptive.New(key)
	}
	return adaptive.NewWithType(key, t)
}

func (s *Store) localKey() ([]byte, error) {
	key, err := os.ReadFile(s.keyPath)
	if err == nil {
		if len(key) != localKeySize {
			return nil, fmt.Errorf("local key %s: want %d bytes, got %d", s.keyPath, localKeySize, len(key))
		}
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read local key: %w", err)
	}

	key = make([]byte, localKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate local key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.keyPath), 0700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(s.keyPath, key, 0600); err != nil {
		return nil, fmt.Errorf("write local key: %w", err)
	}
	return key, nil
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, " \t\r\n:") {
		return fmt.Errorf("%w: %q", ErrInvalidProfileName, name)
	}
	return nil
}
