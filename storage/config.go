package storage

import (
	"fmt"
	"os"

	"github.com/boltdb/bolt"
	log "github.com/sirupsen/logrus"
)

// Config selects and configures a Store backend. It is embedded in the
// configuration files of the commands.
type Config struct {
	// One of "s3", "minio", "bolt", "disk", "remote" and "memory".
	Type string `json:"type"`

	// Properties for "s3", "minio" and "dynamodb" types.
	Profile  string `json:"profile"`
	Region   string `json:"region"`
	Bucket   string `json:"bucket"`
	Endpoint string `json:"endpoint"`

	// Properties for "minio" type. The keys themselves are read from the
	// environment variables named here.
	AccessKeyEnv string `json:"access_key_env"`
	SecretKeyEnv string `json:"secret_key_env"`
	Insecure     bool   `json:"insecure"`

	// Properties for "bolt" (database file) and "disk" (directory) types.
	Path string `json:"path"`

	// Properties for "remote" type.
	Address string `json:"address"`

	// Properties for "dynamodb" type (revision stores only).
	Table string `json:"table"`
}

// Open builds the store described by c. The returned function releases
// resources held by the store.
func Open(c Config) (store Store, closer func() error, err error) {
	noop := func() error { return nil }
	switch c.Type {
	case "s3":
		return NewS3(c.Profile, c.Region, c.Bucket, c.Endpoint), noop, nil
	case "minio":
		m, err := NewMinio(MinioOptions{
			Endpoint:        c.Endpoint,
			Region:          c.Region,
			Bucket:          c.Bucket,
			AccessKeyID:     os.Getenv(c.AccessKeyEnv),
			SecretAccessKey: os.Getenv(c.SecretKeyEnv),
			Insecure:        c.Insecure,
		})
		if err != nil {
			return nil, nil, err
		}
		return m, noop, nil
	case "bolt":
		pathname := os.ExpandEnv(c.Path)
		db, err := bolt.Open(pathname, 0600, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open database %q: %w", pathname, err)
		}
		bs, err := NewBoltStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return bs, db.Close, nil
	case "disk":
		dir := os.ExpandEnv(c.Path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, nil, fmt.Errorf("could not ensure directory %q exists: %w", dir, err)
		}
		return NewDiskStore(dir), noop, nil
	case "remote":
		return NewRemoteStore(c.Address), noop, nil
	case "memory":
		log.Warn("Using an in-memory store, nothing will survive a restart")
		return NewInMemoryStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type %q", c.Type)
	}
}

// OpenVersioned builds a VersionedStore: "dynamodb" for a table shared by all
// processes, anything Open accepts for a VersionedWrapper over that store, or
// "" / "none" for no revision tracking (nil store).
func OpenVersioned(c Config) (store VersionedStore, closer func() error, err error) {
	switch c.Type {
	case "", "none":
		return nil, func() error { return nil }, nil
	case "dynamodb":
		ds, err := NewDynamoDBVersionedStore(c.Profile, c.Region, c.Table)
		if err != nil {
			return nil, nil, err
		}
		return ds, func() error { return nil }, nil
	default:
		delegate, closer, err := Open(c)
		if err != nil {
			return nil, nil, err
		}
		return NewVersionedWrapper(delegate), closer, nil
	}
}
