// Package upload stages uploaded archive files before extraction.
//
// Uploads arrive either as multipart form data or as base64 data URLs from
// browser clients. A Store holds the staged file until a session claims it;
// claimed files are consumed. DiskStore keeps staged files on the local
// filesystem; S3Store keeps them in an S3 bucket for multi-server setups.
package upload
