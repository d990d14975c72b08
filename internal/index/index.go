// Package index builds a searchable, ordered view over the contexts of
// a kubeconfig document. The index is a pure projection: it never
// mutates the document it was built from.
package index

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
	"k8s.io/client-go/tools/clientcmd/api"

	"ktx/internal/probe"
)

// Entry is one row of the context index.
type Entry struct {
	Name      string
	Cluster   string
	Server    string
	AuthKind  string
	Namespace string
	Current   bool
	Health    probe.Record
}

// Index is an ordered snapshot of the document's contexts plus their
// last known health. Rebuild it after every document change.
type Index struct {
	entries    []Entry
	generation uint64
}

// New returns an empty index.
func New() *Index {
	return &Index{}
}

// Build rebuilds the index from a document snapshot and the health
// records collected so far. Entries are ordered by context name.
func (i *Index) Build(doc *api.Config, health map[string]probe.Record) {
	entries := make([]Entry, 0, len(doc.Contexts))
	for name, ctx := range doc.Contexts {
		entry := Entry{
			Name:      name,
			Cluster:   ctx.Cluster,
			Namespace: ctx.Namespace,
			Current:   name == doc.CurrentContext,
		}
		if cluster, ok := doc.Clusters[ctx.Cluster]; ok {
			entry.Server = cluster.Server
		}
		entry.AuthKind = authKind(doc.AuthInfos[ctx.AuthInfo])
		if record, ok := health[name]; ok {
			entry.Health = record
		} else {
			entry.Health = probe.Record{Context: name, Status: probe.StatusUnknown}
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].Name < entries[b].Name })
	i.entries = entries
	i.generation++
}

// Entries returns the full ordered entry list.
func (i *Index) Entries() []Entry {
	return i.entries
}

// Generation returns the rebuild counter, bumped by every Build.
func (i *Index) Generation() uint64 {
	return i.generation
}

// Search returns the entries matching query, ranked by fuzzy match
// quality against "<name> <server>", case-insensitive. Ties break to
// the shorter context name, then lexical order. An empty query returns
// every entry in index order.
func (i *Index) Search(query string) []Entry {
	if strings.TrimSpace(query) == "" {
		return i.Entries()
	}

	targets := make([]string, len(i.entries))
	for n, entry := range i.entries {
		targets[n] = strings.ToLower(entry.Name + " " + entry.Server)
	}
	matches := fuzzy.Find(strings.ToLower(query), targets)

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].Score != matches[b].Score {
			return matches[a].Score > matches[b].Score
		}
		nameA := i.entries[matches[a].Index].Name
		nameB := i.entries[matches[b].Index].Name
		if len(nameA) != len(nameB) {
			return len(nameA) < len(nameB)
		}
		return nameA < nameB
	})

	results := make([]Entry, 0, len(matches))
	for _, match := range matches {
		results = append(results, i.entries[match.Index])
	}
	return results
}

// authKind names the authentication method of a user entry.
func authKind(user *api.AuthInfo) string {
	switch {
	case user == nil:
		return "none"
	case user.Exec != nil:
		return "exec"
	case user.Token != "" || user.TokenFile != "":
		return "token"
	case len(user.ClientCertificateData) > 0 || user.ClientCertificate != "":
		return "cert"
	case user.Username != "":
		return "basic"
	default:
		return "none"
	}
}
