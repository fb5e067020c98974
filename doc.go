// Package mongoarrow converts MongoDB query results into Apache Arrow
// records and writes Arrow records back to MongoDB.
//
// # Architecture
//
// A conversion always starts from a schema, an ordered mapping of field names
// to canonical column types:
//
//	s, err := schema.New(bson.D{
//		{Key: "_id", Value: types.ObjectID},
//		{Key: "amount", Value: "float64"},
//		{Key: "last_updated", Value: "datetime"},
//	})
//
// The read path pulls documents from a cursor and appends each declared field
// to a typed Arrow builder (package materialize). Missing and null values
// become null slots and fields the schema does not declare are ignored:
//
//	tbl, err := api.FindArrowAll(ctx, coll, bson.D{{Key: "status", Value: "paid"}}, s)
//	defer tbl.Release()
//
// The write path projects table rows back into BSON documents (package
// project) and inserts them in ordered batches (package writer). A batch that
// fails stops the write and the returned *writer.ArrowWriteError carries the
// number of documents already inserted and the absolute row index of every
// rejected document:
//
//	res, err := api.Write(ctx, coll, tbl)
//	var werr *writer.ArrowWriteError
//	if errors.As(err, &werr) {
//		log.Printf("inserted %d before failure", werr.NInserted)
//	}
//
// # Packages
//
//   - types: canonical column types and the ObjectId and Decimal128 Arrow extension types
//   - schema: schema construction, projections and Arrow schema derivation
//   - materialize: documents to columns
//   - project: columns to documents
//   - writer: batched bulk inserts with partial failure reporting
//   - api: find, aggregate and write entry points with tracing
//   - config, logger, metrics, observability, compression: the ambient stack
//     used by the mongoarrow command
//
// The mongoarrow command in cmd/mongoarrow exports query results as Arrow IPC
// files or extended JSON lines and bulk-loads them back into a collection.
package mongoarrow
