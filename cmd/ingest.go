package main

import (
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlas-specialty/underwrite-cli/internal/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Ingest quote-request emails as pending cases",
	Long:  "Parses each RFC 5322 email file (or stdin when no files are given) and stores it as a pending underwriting case. Run `process` to start the pipeline.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if len(args) == 0 {
			rec, err := ingestEmail(os.Stdin)
			if err != nil {
				return eris.Wrap(err, "ingest stdin")
			}
			if err := st.CreateCase(ctx, rec); err != nil {
				return err
			}
			fmt.Println(rec.ID)
			return nil
		}

		for _, path := range args {
			f, err := os.Open(path)
			if err != nil {
				return eris.Wrapf(err, "ingest %s", path)
			}
			rec, err := ingestEmail(f)
			_ = f.Close()
			if err != nil {
				return eris.Wrapf(err, "ingest %s", path)
			}
			if err := st.CreateCase(ctx, rec); err != nil {
				return err
			}
			zap.L().Info("case ingested",
				zap.String("case_id", rec.ID),
				zap.String("sender", rec.Sender),
				zap.String("file", path))
			fmt.Println(rec.ID)
		}
		return nil
	},
}

// ingestEmail parses one email into a pending case. Input that is not a
// parseable message is stored verbatim as the body.
func ingestEmail(r io.Reader) (*model.CaseRecord, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "read email")
	}

	rec := &model.CaseRecord{ReceivedAt: time.Now().UTC()}

	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		rec.Body = string(raw)
		return rec, nil
	}

	rec.Sender = msg.Header.Get("From")
	rec.Subject = msg.Header.Get("Subject")
	if date, err := msg.Header.Date(); err == nil {
		rec.ReceivedAt = date.UTC()
	}
	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read email body")
	}
	rec.Body = string(body)
	return rec, nil
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
