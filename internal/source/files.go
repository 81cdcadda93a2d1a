package source

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// TextReader extracts plain text from a document format.
type TextReader interface {
	ReadText(name string, data []byte) (string, error)
}

// TextReaderFunc adapts a function to TextReader.
type TextReaderFunc func(name string, data []byte) (string, error)

// ReadText calls f.
func (f TextReaderFunc) ReadText(name string, data []byte) (string, error) { return f(name, data) }

// ErrNoReader is returned for a format that needs a reader and has none.
var ErrNoReader = errors.New("no text reader registered for format")

// readersByExt holds the built-in readers. Formats listed in needsReader are
// skipped unless a reader is registered; anything else falls back to Decode.
var (
	readersByExt = map[string]TextReader{
		".txt":  TextReaderFunc(plainText),
		".log":  TextReaderFunc(plainText),
		".docx": TextReaderFunc(docxText),
	}
	needsReader = map[string]bool{
		".pdf": true,
	}
)

func plainText(_ string, data []byte) (string, error) {
	return Decode(data), nil
}

// extractText dispatches on the file extension of name.
func extractText(readers map[string]TextReader, name string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if r, ok := readers[ext]; ok {
		return r.ReadText(name, data)
	}
	if needsReader[ext] {
		return "", errors.Wrapf(ErrNoReader, "%s", ext)
	}
	return Decode(data), nil
}

// docxText returns the paragraphs of word/document.xml, one per line.
func docxText(_ string, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(err, "opening docx archive")
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", errors.Wrap(err, "opening document part")
		}
		defer rc.Close()
		return wordprocessingText(rc)
	}
	return "", errors.New("docx archive has no word/document.xml")
}

func wordprocessingText(r io.Reader) (string, error) {
	var (
		b      strings.Builder
		inText bool
	)
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, "parsing document part")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// folderFiles lists the regular files directly inside dir in name order.
func folderFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.Newf("%s is not a directory", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}
