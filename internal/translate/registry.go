package translate

import (
	"archive/zip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrPathTraversal indicates an archive entry that escapes its install dir.
var ErrPathTraversal = errors.New("archive entry escapes install directory")

const maxPackageBytes = 1 << 30

// Package is one entry of the package index.
type Package struct {
	Type    string   `json:"package_type"`
	From    string   `json:"from_code"`
	To      string   `json:"to_code"`
	Version string   `json:"package_version"`
	Links   []string `json:"links"`
}

// InstalledPackage is a catalog row.
type InstalledPackage struct {
	Pair
	Version     string
	Path        string
	InstalledAt time.Time
}

// RegistryConfig configures the offline package registry.
type RegistryConfig struct {
	IndexURL    string
	PackagesDir string
	CatalogPath string
	Client      *http.Client // optional
	Logger      *slog.Logger
}

// Registry fetches the package index, installs packages into PackagesDir
// and records them in a SQLite catalog.
type Registry struct {
	indexURL    string
	packagesDir string
	db          *sql.DB
	client      *http.Client
	retry       retryPolicy
	logger      *slog.Logger
}

func OpenRegistry(cfg RegistryConfig) (*Registry, error) {
	if err := os.MkdirAll(cfg.PackagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create packages directory %s: %w", cfg.PackagesDir, err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.CatalogPath), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.CatalogPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrateCatalog(db, cfg.Logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog migration failed: %w", err)
	}

	client := cfg.Client
	if client == nil {
		client = SharedHTTPClient(5 * time.Minute)
	}
	return &Registry{
		indexURL:    cfg.IndexURL,
		packagesDir: cfg.PackagesDir,
		db:          db,
		client:      client,
		retry:       defaultRetryPolicy,
		logger:      cfg.Logger,
	}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

// PackagesDir is where packages are unpacked.
func (r *Registry) PackagesDir() string { return r.packagesDir }

// Installed reports whether p is in the catalog and its files still exist.
func (r *Registry) Installed(ctx context.Context, p Pair) (bool, error) {
	var path string
	err := r.db.QueryRowContext(ctx,
		`SELECT path FROM installed_packages WHERE from_code = ? AND to_code = ?`,
		p.From, p.To,
	).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query catalog: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		r.logger.Warn("catalog entry points at missing files", "pair", p.String(), "path", path)
		return false, nil
	}
	return true, nil
}

// List returns every catalog row ordered by pair.
func (r *Registry) List(ctx context.Context) ([]InstalledPackage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT from_code, to_code, version, path, installed_at
		 FROM installed_packages ORDER BY from_code, to_code`)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var out []InstalledPackage
	for rows.Next() {
		var ip InstalledPackage
		if err := rows.Scan(&ip.From, &ip.To, &ip.Version, &ip.Path, &ip.InstalledAt); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		out = append(out, ip)
	}
	return out, rows.Err()
}

// Available fetches the package index and returns its translation packages.
func (r *Registry) Available(ctx context.Context) ([]Package, error) {
	resp, err := doWithRetry(ctx, r.client, r.retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, r.indexURL, nil)
	}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("fetch package index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch package index: HTTP %d", resp.StatusCode)
	}

	var index []Package
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&index); err != nil {
		return nil, fmt.Errorf("decode package index: %w", err)
	}

	pkgs := index[:0]
	for _, p := range index {
		if p.Type != "" && p.Type != "translate" {
			continue
		}
		if p.From == "" || p.To == "" || len(p.Links) == 0 {
			continue
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, nil
}

// Install downloads pkg, unpacks it and records it in the catalog,
// replacing any previous install of the same pair.
func (r *Registry) Install(ctx context.Context, pkg Package) error {
	if len(pkg.Links) == 0 {
		return fmt.Errorf("package %s->%s has no download link", pkg.From, pkg.To)
	}

	archive, err := r.download(ctx, pkg.Links[0])
	if err != nil {
		return err
	}
	defer os.Remove(archive)

	dest := filepath.Join(r.packagesDir, packageDirName(pkg))
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("clear install directory: %w", err)
	}
	if err := unzip(archive, dest); err != nil {
		os.RemoveAll(dest)
		return fmt.Errorf("unpack %s->%s: %w", pkg.From, pkg.To, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO installed_packages (from_code, to_code, version, path, installed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(from_code, to_code) DO UPDATE SET
			version = excluded.version,
			path = excluded.path,
			installed_at = excluded.installed_at`,
		pkg.From, pkg.To, pkg.Version, dest, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record package: %w", err)
	}

	r.logger.Info("offline model installed", "from", pkg.From, "to", pkg.To, "version", pkg.Version, "path", dest)
	return nil
}

func (r *Registry) download(ctx context.Context, link string) (string, error) {
	resp, err := doWithRetry(ctx, r.client, r.retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	}, r.logger)
	if err != nil {
		return "", fmt.Errorf("download package: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download package: HTTP %d", resp.StatusCode)
	}

	path := filepath.Join(r.packagesDir, ".download-"+uuid.NewString()+".zip")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, maxPackageBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > maxPackageBytes {
		err = fmt.Errorf("package exceeds %d bytes", maxPackageBytes)
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("download package: %w", err)
	}
	return path, nil
}

func packageDirName(pkg Package) string {
	name := "translate-" + pkg.From + "_" + pkg.To
	if pkg.Version != "" {
		name += "-" + strings.ReplaceAll(pkg.Version, ".", "_")
	}
	return filepath.Base(name)
}

// unzip extracts archive into dest, rejecting entries that would land
// outside dest.
func unzip(archive, dest string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer zr.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}

	for _, f := range zr.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("%w: %s", ErrPathTraversal, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, io.LimitReader(rc, maxPackageBytes)); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
