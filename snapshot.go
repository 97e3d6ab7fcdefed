package redkv

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/l00pss/redkv/internal/rdb"
)

// LoadSnapshot reads the RDB file named by s.Config (dir/dbfilename) and
// populates s.Keyspace from it. A missing directory or filename setting,
// or a missing file on disk, is not an error: the server simply starts
// with an empty keyspace, matching how a fresh Redis instance behaves
// when it has nothing to recover.
func (s *Server) LoadSnapshot() error {
	dir, haveDir := s.Config.Get("dir")
	name, haveName := s.Config.Get("dbfilename")
	if !haveDir || !haveName {
		return nil
	}

	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "read rdb snapshot %s", path)
	}

	n, err := rdb.Decode(data, rdb.SinkFunc(func(e rdb.Entry) {
		s.Keyspace.Set(e.Key, e.Value, e.ExpiresAt)
	}))
	if err != nil && !errors.Is(err, rdb.ErrUnsupportedEncoding) {
		return errors.Wrapf(err, "decode rdb snapshot %s", path)
	}
	if errors.Is(err, rdb.ErrUnsupportedEncoding) {
		s.Log.Warnf("rdb snapshot %s: stopped at an unsupported encoding after loading %d keys", path, n)
	}

	rdbKeysLoaded.Set(float64(n))
	s.Log.Infof("loaded %d keys from %s", n, path)
	return nil
}
