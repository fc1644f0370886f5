package store

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tecbot/gorocksdb"

	"github.com/chenzhangda16/grantguard/internal/mockexplorer/model"
)

var ErrNotFound = errors.New("not found")

type RocksStore struct {
	db *gorocksdb.DB
	ro *gorocksdb.ReadOptions
	wo *gorocksdb.WriteOptions
}

func Open(path string) (*RocksStore, error) {
	opts := gorocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)

	db, err := gorocksdb.OpenDb(opts, path)
	if err != nil {
		return nil, err
	}

	return &RocksStore{
		db: db,
		ro: gorocksdb.NewDefaultReadOptions(),
		wo: gorocksdb.NewDefaultWriteOptions(),
	}, nil
}

func (s *RocksStore) Close() {
	if s.ro != nil {
		s.ro.Destroy()
	}
	if s.wo != nil {
		s.wo.Destroy()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func (s *RocksStore) get(k []byte) ([]byte, error) {
	val, err := s.db.Get(s.ro, k)
	if err != nil {
		return nil, err
	}
	defer val.Free()
	if !val.Exists() {
		return nil, ErrNotFound
	}
	// val.Data() 指向 RocksDB 管理的内存，Free 之后失效，必须 copy
	return append([]byte(nil), val.Data()...), nil
}

// Load writes a whole scenario in one batch. Transfers are indexed under
// both endpoints.
func (s *RocksStore) Load(sc model.Scenario) error {
	wb := gorocksdb.NewWriteBatch()
	defer wb.Destroy()

	rounds := make([]model.Round, 0, len(sc.Rounds))
	for _, rd := range sc.Rounds {
		b, err := model.Encode(rd)
		if err != nil {
			return err
		}
		wb.Put(KeyRound(strings.ToLower(rd.Round.ID)), b)
		rounds = append(rounds, rd.Round)
	}
	b, err := model.Encode(rounds)
	if err != nil {
		return err
	}
	wb.Put(KeyRounds(), b)

	for _, tx := range sc.Transfers {
		b, err := model.Encode(tx)
		if err != nil {
			return err
		}
		wb.Put(KeyTransfer(tx.From, tx.Token, tx.BlockNumber, tx.Hash), b)
		if !strings.EqualFold(tx.From, tx.To) {
			wb.Put(KeyTransfer(tx.To, tx.Token, tx.BlockNumber, tx.Hash), b)
		}
	}
	for n, ts := range sc.Blocks {
		wb.Put(KeyBlock(n), []byte(strconv.FormatInt(ts, 10)))
	}
	return s.db.Write(s.wo, wb)
}

func (s *RocksStore) Rounds() ([]model.Round, error) {
	raw, err := s.get(KeyRounds())
	if errors.Is(err, ErrNotFound) {
		return []model.Round{}, nil
	}
	if err != nil {
		return nil, err
	}
	return model.Decode[[]model.Round](raw)
}

func (s *RocksStore) Round(id string) (model.RoundData, error) {
	raw, err := s.get(KeyRound(strings.ToLower(id)))
	if err != nil {
		return model.RoundData{}, err
	}
	return model.Decode[model.RoundData](raw)
}

// Transfers returns an address's transfers ordered by block.
func (s *RocksStore) Transfers(address string, token bool) ([]model.Transfer, error) {
	prefix := PrefixTransfers(address, token)
	it := s.db.NewIterator(s.ro)
	defer it.Close()

	out := make([]model.Transfer, 0)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		v := it.Value()
		tx, err := model.Decode[model.Transfer](v.Data())
		v.Free()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, it.Err()
}

func (s *RocksStore) BlockTime(n int64) (int64, error) {
	raw, err := s.get(KeyBlock(n))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}
