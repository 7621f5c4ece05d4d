// Package snapshot persists indexes to a blobstore.Store.
//
// A snapshot blob wraps the index serialization:
//
//	"RGSN" | version u16 | compression u8 | reserved u8
//	compressed blocks (internal/compress framing)
//	raw size u64 | CRC32C u32 over everything before it
//
// Save writes the blob under Options.Prefix with a zero-padded sequence
// number and then points the CURRENT blob at it. Load follows CURRENT.
//
//	store := blobstore.NewLocalStore("/var/lib/roargraph/products")
//	if _, err := snapshot.Save(ctx, store, idx); err != nil {
//	    return err
//	}
//
//	idx, info, err := snapshot.Load[string](ctx, store)
//
// With s3.DDBCommitStore the CURRENT update is a conditional write, so two
// processes saving concurrently cannot silently overwrite each other's commit.
package snapshot
