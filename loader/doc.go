// Package loader reads a directory tree of text and PDF files into
// documents.
//
// Files are enumerated in lexical order and extracted concurrently on a
// bounded worker pool; the resulting documents keep the enumeration order.
// A file that cannot be extracted is reported in Result.Failures and never
// aborts the batch.
//
// Example:
//
//	l, err := loader.New(loader.WithPDFBackend(loader.PDFBackendFitz))
//	result, err := l.Load(ctx, "./docs")
//	if errors.Is(err, loader.ErrEmptyCorpus) {
//	    // nothing to index
//	}
package loader
