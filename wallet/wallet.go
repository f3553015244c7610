// SPDX-License-Identifier: Apache-2.0

package wallet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"perun.network/go-perun/log"
)

// FsWallet is a garbage-collected file system key store, removing all keys when
// they are no longer used. Generated keys will not be persisted to permanent
// storage unless IncrementUsage() is called on them. Once a key is no longer
// used (as indicated by DecrementUsage()), it is deleted from storage.
type FsWallet struct {
	log.Embedding

	mutex sync.Mutex
	file  string

	seed      [24]byte            // the wallet's random seed.
	latestAcc uint64              // the next account's nonce.
	openAccs  map[Address]*openAcc // all currently stored accounts.
}

type openAcc struct {
	nonce    uint64
	useCount uint32
	acc      *Account
}

// ErrUnknownAccount the wallet holds no key for the address.
var ErrUnknownAccount = errors.New("no such account")

var bo = binary.LittleEndian

// NewRAMWallet creates an unpersisted FsWallet.
func NewRAMWallet(gen io.Reader) (*FsWallet, error) {
	w := newFsWallet("")
	if _, err := io.ReadFull(gen, w.seed[:]); err != nil {
		return nil, fmt.Errorf("error reading random seed: %v", err)
	}
	return w, nil
}

// CreateOrLoadFsWallet loads the wallet from the requested path, otherwise, it
// creates a new one and saves it to the requested path.
func CreateOrLoadFsWallet(path string, gen io.Reader) (*FsWallet, error) {
	w := newFsWallet(path)

	if file, err := os.ReadFile(path); err == nil {
		if err := w.load(bytes.NewReader(file)); err != nil {
			return nil, errors.WithMessage(err, "loading wallet")
		}
	} else {
		if _, err := io.ReadFull(gen, w.seed[:]); err != nil {
			return nil, err
		}
		if err := w.save(); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func newFsWallet(path string) *FsWallet {
	return &FsWallet{
		Embedding: log.MakeEmbedding(log.Default()),
		file:      path,
		openAccs:  make(map[Address]*openAcc),
	}
}

func (w *FsWallet) load(r io.Reader) error {
	if _, err := io.ReadFull(r, w.seed[:]); err != nil {
		return err
	}
	if err := binary.Read(r, bo, &w.latestAcc); err != nil {
		return err
	}
	var openAccs uint32
	if err := binary.Read(r, bo, &openAccs); err != nil {
		return err
	}
	w.openAccs = make(map[Address]*openAcc, openAccs)
	for i := uint32(0); i < openAccs; i++ {
		var addr Address
		if _, err := io.ReadFull(r, addr[:]); err != nil {
			return err
		}

		acc := &openAcc{}
		if err := binary.Read(r, bo, &acc.nonce); err != nil {
			return err
		}
		if err := binary.Read(r, bo, &acc.useCount); err != nil {
			return err
		}

		w.openAccs[addr] = acc
	}
	return nil
}

func (w *FsWallet) save() error {
	if w.file == "" {
		return nil
	}

	file := new(bytes.Buffer)
	file.Write(w.seed[:])

	if err := binary.Write(file, bo, w.latestAcc); err != nil {
		return fmt.Errorf("error writing latestAcc: %v", err)
	}
	if err := binary.Write(file, bo, uint32(len(w.openAccs))); err != nil {
		return fmt.Errorf("error writing openAccs length: %v", err)
	}

	for addr, acc := range w.openAccs {
		file.Write(addr[:])

		if err := binary.Write(file, bo, acc.nonce); err != nil {
			return fmt.Errorf("error writing nonce for account %s: %v", addr, err)
		}
		if err := binary.Write(file, bo, acc.useCount); err != nil {
			return fmt.Errorf("error writing useCount for account %s: %v", addr, err)
		}
	}

	return os.WriteFile(w.file, file.Bytes(), 0600)
}

// genAcc derives the key with the given nonce from the wallet seed.
func (w *FsWallet) genAcc(id uint64) *Account {
	seed := new(bytes.Buffer)
	seed.Write(w.seed[:])
	if err := binary.Write(seed, bo, id); err != nil {
		panic(fmt.Sprintf("error writing id to seed buffer: %v", err))
	}

	material := crypto.Keccak256(seed.Bytes())
	for {
		sk, err := crypto.ToECDSA(material)
		if err == nil {
			return NewAccountFromKey(sk)
		}
		// Scalar out of range, rehash.
		material = crypto.Keccak256(material)
	}
}

// NewAccount creates a fresh unlocked account. This account is not persisted
// until IncrementUsage() is called on it.
func (w *FsWallet) NewAccount() *Account {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	acc := w.genAcc(w.latestAcc)
	w.openAccs[acc.Address()] = &openAcc{
		nonce:    w.latestAcc,
		useCount: 0,
		acc:      acc,
	}

	w.latestAcc++
	return acc
}

// Unlock retrieves the account belonging to the requested address.
func (w *FsWallet) Unlock(addr Address) (*Account, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	acc, ok := w.openAccs[addr]
	if !ok {
		return nil, errors.WithMessagef(ErrUnknownAccount, "address %v", addr)
	}

	if acc.acc == nil {
		acc.acc = w.genAcc(acc.nonce)
	}
	return acc.acc, nil
}

// LockAll disables all currently unlocked accounts.
func (w *FsWallet) LockAll() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	for _, acc := range w.openAccs {
		if acc.acc != nil {
			acc.acc.clear()
			acc.acc = nil
		}
	}
}

// IncrementUsage tracks how many times an account is in use. Use
// DecrementUsage() when an account is no longer used. Once the counter reaches
// 0, the account is deleted.
func (w *FsWallet) IncrementUsage(addr Address) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	acc, ok := w.openAccs[addr]
	if !ok {
		w.Log().WithField("address", addr).Warn("IncrementUsage: account not found")
		return
	}
	acc.useCount++

	if err := w.save(); err != nil {
		w.Log().WithError(err).Error("IncrementUsage: saving wallet")
	}
}

// DecrementUsage completements IncrementUsage().
func (w *FsWallet) DecrementUsage(addr Address) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	acc, ok := w.openAccs[addr]
	if !ok {
		w.Log().WithField("address", addr).Warn("DecrementUsage: account not found")
		return
	}
	if acc.useCount == 0 {
		w.Log().WithField("address", addr).Warn("DecrementUsage: unused account")
		return
	}
	acc.useCount--
	if acc.useCount == 0 {
		if acc.acc != nil {
			acc.acc.clear()
		}
		delete(w.openAccs, addr)
	}

	if err := w.save(); err != nil {
		w.Log().WithError(err).Error("DecrementUsage: saving wallet")
	}
}
