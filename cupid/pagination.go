package cupid

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// UserList is a lazily fetched list of users matching a search. Pages are
// fetched one at a time and each user is resolved through the auth
// context that created the list.
//
// A UserList is not safe for concurrent use.
type UserList struct {
	client  *authClient
	resolve resolveFunc
	search  UserSearch
	total   int
	fetched bool
}

func newUserList(client *authClient, resolve resolveFunc, search string, perPage int) *UserList {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &UserList{
		client:  client,
		resolve: resolve,
		search:  UserSearch{Search: search, PerPage: perPage},
	}
}

// Search returns the current search parameters, including the last page requested
func (l *UserList) Search() UserSearch {
	return l.search
}

// Total returns the number of matching users reported by the most recent
// page fetch. Before any page has been fetched it returns ErrTotalUnknown.
func (l *UserList) Total() (int, error) {
	if !l.fetched {
		return 0, ErrTotalUnknown
	}
	return l.total, nil
}

// GetPage fetches page n (0-based). A page past the end is empty, not an error.
func (l *UserList) GetPage(ctx context.Context, n int) ([]User, error) {
	l.search.Page = n
	raw, err := l.client.getUserPage(ctx, l.search)
	if err != nil {
		return nil, fmt.Errorf("failed to get page %d: %w", n, err)
	}
	l.total = raw.Total
	l.fetched = true

	users := make([]User, 0, len(raw.Users))
	for _, rec := range raw.Users {
		users = append(users, l.resolve(rec))
	}
	return users, nil
}

// Flatten fetches pages in order until an empty page, returning at most
// limit users. A limit of zero or less means no limit. The reported total
// is never used to decide when to stop.
func (l *UserList) Flatten(ctx context.Context, limit int) ([]User, error) {
	var users []User
	for page := 0; ; page++ {
		batch, err := l.GetPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return users, nil
		}
		users = append(users, batch...)
		if limit > 0 && len(users) >= limit {
			return users[:limit], nil
		}
	}
}

// Iterator returns a new iterator starting at the first page
func (l *UserList) Iterator() *UserIterator {
	return &UserIterator{list: l}
}

// All yields every user in order. Iteration stops at the first error,
// which is yielded with a nil user.
func (l *UserList) All(ctx context.Context) iter.Seq2[User, error] {
	return func(yield func(User, error) bool) {
		it := l.Iterator()
		for {
			u, err := it.Next(ctx)
			if errors.Is(err, ErrIteratorDone) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(u, nil) {
				return
			}
		}
	}
}

// UserIterator walks a UserList one user at a time, holding at most one
// page. It only moves forward and can not be restarted.
type UserIterator struct {
	list  *UserList
	page  int
	cache []User
	done  bool
}

// Next returns the next user, or ErrIteratorDone after the last one
func (it *UserIterator) Next(ctx context.Context) (User, error) {
	if it.done {
		return nil, ErrIteratorDone
	}
	if len(it.cache) == 0 {
		users, err := it.list.GetPage(ctx, it.page)
		if err != nil {
			return nil, err
		}
		it.page++
		if len(users) == 0 {
			it.done = true
			return nil, ErrIteratorDone
		}
		it.cache = users
	}
	u := it.cache[0]
	it.cache = it.cache[1:]
	return u, nil
}
