// Package e2e drives a running Kaiwa server over real HTTP and checks the
// full user journey: projects, uploads, questions, transcripts.
package e2e

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"strings"
)

// fixtureDoc is one document in the test corpus.
type fixtureDoc struct {
	Name string
	Text string
}

// corpus is a small set of study documents with distinct topics, so a
// question about one topic retrieves that document's chunks.
var corpus = []fixtureDoc{
	{
		Name: "plants.txt",
		Text: "Photosynthesis is the process plants use to convert sunlight into chemical energy.\n" +
			"Chlorophyll inside chloroplasts absorbs light, mostly in the red and blue parts of the spectrum.\n" +
			"The products of photosynthesis are glucose and oxygen.",
	},
	{
		Name: "physics.md",
		Text: "# Gravity\n" +
			"Gravity is the attraction between objects with mass.\n" +
			"On Earth the gravitational acceleration is about 9.8 meters per second squared.\n" +
			"Orbits are the result of bodies falling around each other.",
	},
	{
		Name: "water.txt",
		Text: "The water cycle moves water between the oceans, the atmosphere, and the land.\n" +
			"Evaporation lifts water into the air, condensation forms clouds, and precipitation returns it.\n" +
			"Rivers carry runoff back to the sea.",
	},
}

// longDoc builds a document large enough to produce many chunks.
func longDoc(name string, paragraphs int) fixtureDoc {
	var sb strings.Builder
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&sb, "Paragraph %d discusses a separate aspect of the subject in enough detail to fill a chunk.\n", i)
	}
	return fixtureDoc{Name: name, Text: sb.String()}
}

// multipartBody renders docs as a multipart form under the "files" field.
func multipartBody(docs []fixtureDoc) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, d := range docs {
		part, err := mw.CreateFormFile("files", d.Name)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write([]byte(d.Text)); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
