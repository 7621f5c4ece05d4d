// Package s3 provides Amazon S3 implementations of blobstore.Store.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", func(o *s3.Options) {
//	    o.Prefix = "indexes/products"
//	    o.Region = "us-east-1"
//	})
//
//	_, err = snapshot.Save(ctx, store, idx)
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads with CRC32C checksums
//   - Conditional writes (PutIfNotExists) so snapshots are never overwritten
//   - DDBCommitStore: DynamoDB conditional writes for the CURRENT pointer,
//     so concurrent writers cannot lose a commit
package s3
