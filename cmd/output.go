package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/s0up4200/cupid/config"
	"github.com/s0up4200/cupid/cupid"
)

type userView struct {
	ID            int64  `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Discriminator string `json:"discriminator,omitempty" yaml:"discriminator,omitempty"`
	AvatarURL     string `json:"avatar_url" yaml:"avatar_url"`
	Gender        string `json:"gender" yaml:"gender"`
}

type relationshipView struct {
	ID         int64      `json:"id" yaml:"id"`
	Initiator  int64      `json:"initiator" yaml:"initiator"`
	Other      int64      `json:"other" yaml:"other"`
	Kind       string     `json:"kind" yaml:"kind"`
	Accepted   bool       `json:"accepted" yaml:"accepted"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty" yaml:"accepted_at,omitempty"`
	Summary    string     `json:"summary" yaml:"summary"`
}

type profileView struct {
	User     userView           `json:"user" yaml:"user"`
	Accepted []relationshipView `json:"accepted" yaml:"accepted"`
	Incoming []relationshipView `json:"incoming" yaml:"incoming"`
	Outgoing []relationshipView `json:"outgoing" yaml:"outgoing"`
}

type graphView struct {
	Users         []userView         `json:"users" yaml:"users"`
	Relationships []relationshipView `json:"relationships" yaml:"relationships"`
}

type filterMatchesView struct {
	Filter string     `json:"filter" yaml:"filter"`
	Users  []userView `json:"users" yaml:"users"`
}

func newUserView(u cupid.User) userView {
	disc, _ := u.Discriminator()
	return userView{
		ID:            u.ID(),
		Name:          u.Name(),
		Discriminator: disc,
		AvatarURL:     u.AvatarURL(),
		Gender:        string(u.Gender()),
	}
}

func newUserViews(users []cupid.User) []userView {
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, newUserView(u))
	}
	return views
}

func newRelationshipView(r *cupid.Relationship) relationshipView {
	return relationshipView{
		ID:         r.ID,
		Initiator:  r.Initiator.ID(),
		Other:      r.Other.ID(),
		Kind:       string(r.Kind),
		Accepted:   r.Accepted,
		CreatedAt:  r.CreatedAt,
		AcceptedAt: r.AcceptedAt,
		Summary:    r.String(),
	}
}

func newRelationshipViews(rels []*cupid.Relationship) []relationshipView {
	views := make([]relationshipView, 0, len(rels))
	for _, r := range rels {
		views = append(views, newRelationshipView(r))
	}
	return views
}

func newProfileView(p *cupid.UserWithRelationships) profileView {
	return profileView{
		User:     newUserView(p.User),
		Accepted: newRelationshipViews(p.Accepted),
		Incoming: newRelationshipViews(p.Incoming),
		Outgoing: newRelationshipViews(p.Outgoing),
	}
}

// printer renders command results in the configured output format. Table
// output is produced by the table callback.
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer) *printer {
	format := config.OutputTable
	if cfg != nil {
		format = cfg.Output.Format
	}
	return &printer{w: w, format: format}
}

func (p *printer) print(v any, table func(w *tabwriter.Writer)) error {
	switch p.format {
	case config.OutputJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.OutputYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		writer := tabwriter.NewWriter(p.w, 2, 0, 3, ' ', 0)
		table(writer)
		return writer.Flush()
	}
}

func (p *printer) users(users []userView) error {
	return p.print(users, func(w *tabwriter.Writer) {
		writeUserTable(w, users)
	})
}

func (p *printer) profiles(profiles []profileView) error {
	return p.print(profiles, func(w *tabwriter.Writer) {
		for i, profile := range profiles {
			if i > 0 {
				fmt.Fprintln(w)
			}
			writeUserTable(w, []userView{profile.User})
			writeRelationshipSection(w, "Accepted", profile.Accepted)
			writeRelationshipSection(w, "Incoming", profile.Incoming)
			writeRelationshipSection(w, "Outgoing", profile.Outgoing)
		}
	})
}

func (p *printer) relationship(r relationshipView) error {
	return p.print(r, func(w *tabwriter.Writer) {
		writeRelationshipTable(w, []relationshipView{r})
	})
}

func (p *printer) graph(g graphView) error {
	return p.print(g, func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "%d users, %d relationships\n\n", len(g.Users), len(g.Relationships))
		writeRelationshipTable(w, g.Relationships)
	})
}

func (p *printer) filterMatches(groups []filterMatchesView) error {
	return p.print(groups, func(w *tabwriter.Writer) {
		for i, g := range groups {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "%s: %d matches\n", g.Filter, len(g.Users))
			writeUserTable(w, g.Users)
		}
	})
}

func writeUserTable(w io.Writer, users []userView) {
	fmt.Fprintf(w, "ID\tNAME\tGENDER\tAVATAR\n")
	for _, u := range users {
		name := u.Name
		if u.Discriminator != "" {
			name += "#" + u.Discriminator
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, name, u.Gender, u.AvatarURL)
	}
}

func writeRelationshipSection(w io.Writer, title string, rels []relationshipView) {
	if len(rels) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	writeRelationshipTable(w, rels)
}

func writeRelationshipTable(w io.Writer, rels []relationshipView) {
	fmt.Fprintf(w, "ID\tRELATIONSHIP\tSINCE\n")
	for _, r := range rels {
		since := r.CreatedAt
		if r.AcceptedAt != nil {
			since = *r.AcceptedAt
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", r.ID, r.Summary, since.Format("2006-01-02"))
	}
}
