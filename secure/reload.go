/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package secure

import (
	"crypto/tls"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.osspkg.com/do"
	"go.osspkg.com/errors"
	"go.osspkg.com/ioutils/fs"
	"go.osspkg.com/logx"
)

// keyStore serves the current certificate to handshakes and swaps it when the files change.
type keyStore struct {
	certFile string
	keyFile  string
	password string

	cert    atomic.Pointer[tls.Certificate]
	watcher *fsnotify.Watcher
	reloads atomic.Uint64
}

func newKeyStore(certFile, keyFile, password string) (*keyStore, error) {
	for _, name := range []string{certFile, keyFile} {
		if !fs.FileExist(name) {
			return nil, errors.Wrapf(ErrNoCertificate, "file %s not found", name)
		}
	}
	k := &keyStore{
		certFile: filepath.Clean(certFile),
		keyFile:  filepath.Clean(keyFile),
		password: password,
	}
	if err := k.Reload(); err != nil {
		return nil, err
	}
	return k, nil
}

func staticKeyStore(cert tls.Certificate) *keyStore {
	k := &keyStore{}
	k.cert.Store(&cert)
	return k
}

func (k *keyStore) Reload() error {
	cert, err := LoadKeyPair(k.certFile, k.keyFile, k.password)
	if err != nil {
		return err
	}
	k.cert.Store(&cert)
	k.reloads.Add(1)
	return nil
}

func (k *keyStore) Current() *tls.Certificate {
	return k.cert.Load()
}

func (k *keyStore) ServerCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return k.cert.Load(), nil
}

func (k *keyStore) ClientCertificate(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	return k.cert.Load(), nil
}

// Watch follows the parent directories, editors and cert managers replace files by rename.
func (k *keyStore) Watch() error {
	if len(k.certFile) == 0 {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dirs := map[string]struct{}{
		filepath.Dir(k.certFile): {},
		filepath.Dir(k.keyFile):  {},
	}
	for dir := range dirs {
		if err = w.Add(dir); err != nil {
			return errors.Wrap(err, w.Close())
		}
	}
	k.watcher = w

	do.Async(func() {
		k.follow(w)
	})
	return nil
}

func (k *keyStore) follow(w *fsnotify.Watcher) {
	for {
		select {
		case e, ok := <-w.Events:
			if !ok {
				return
			}
			if e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Clean(e.Name)
			if name != k.certFile && name != k.keyFile {
				continue
			}
			if err := k.Reload(); err != nil {
				logx.Warn("Certificate reload", "err", err, "file", name)
				continue
			}
			logx.Info("Certificate reloaded", "cert", k.certFile)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logx.Warn("Certificate watcher", "err", err)
		}
	}
}

func (k *keyStore) Close() error {
	if k.watcher == nil {
		return nil
	}
	return k.watcher.Close()
}
