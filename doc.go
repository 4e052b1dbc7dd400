// Package docvault stores documents as passphrase-encrypted container files
// on any AbsFs filesystem.
//
// # Overview
//
// A document is a payload plus a MIME type. docvault frames the two into a
// small header-and-body container, encrypts the container with AES in CBC
// mode, and writes it to a file. Decryption reverses the steps and
// reinterprets the body by content type as text, an image, or opaque bytes.
//
// # Basic Usage
//
//	base, _ := memfs.NewFS()
//
//	v, err := docvault.New(base, docvault.DefaultConfig())
//	if err != nil {
//	    panic(err)
//	}
//	v.SetPassphrase(docvault.NewPassphrase([]rune("correct horse")))
//	v.SetKeyFile("/keys/token.bin") // optional second factor
//
//	err = v.Encrypt([]byte("hello"), "text/plain; charset=UTF-8", "/notes.dv", nil)
//
//	doc, err := v.DecryptToDocument("/notes.dv", nil)
//	if text, ok := doc.(*docvault.TextDocument); ok {
//	    fmt.Println(text.Text)
//	}
//
// # Key Derivation
//
// Keys come from PBKDF2 with HMAC-SHA1 (45522 iterations, 128-bit key by
// default). The salt is the SHA-512 digest of an optional key file, which may
// be a local path, a file:// URL or an http(s):// URL fetched through the
// environment's proxy settings. Without a key file, or when it cannot be read,
// a fixed 8-byte salt is used. Changing the key file changes the key even
// with the same passphrase.
//
// Key-file digests are cached until the file's modification time changes.
// Derived keys are never cached.
//
// # File Format
//
// Container files have no magic number or version:
//   - IV (16 bytes): random per file
//   - Ciphertext: AES-CBC with PKCS#7 padding of the container
//
// The container is:
//
//	Content-Type: <mime>\r\n
//	Content-Length: <N>\r\n
//	\r\n
//	<N bytes>
//
// # Errors
//
// A wrong passphrase or key file almost always shows up as bad padding when
// the cipher finishes and is reported as *SecurityError. A container whose
// cipher step succeeded but whose header is unusable is a *CorruptionError.
// Both mean "wrong passphrase or corrupted document" to a user. I/O problems
// are *IOError, and a declined CancelHook yields ErrCancelled.
//
// # Secure Deletion
//
// SecureErase overwrites a file's existing length with random bytes and
// syncs before removing it. This defeats naive undelete tools but not
// filesystems that copy on write.
package docvault
