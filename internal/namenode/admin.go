package namenode

import (
	"context"

	"distfs/internal/auth"
	"distfs/internal/dfserrors"
	"distfs/internal/metadata"
	"distfs/internal/store"
)

// Admin implements the user/group administration verbs of spec section
// 4.1. Every mutating verb here is root-only, except that Passwd also
// lets a user change their own password; Master gates that before
// calling in.
type Admin struct {
	Store store.Store
}

func NewAdmin(s store.Store) *Admin { return &Admin{Store: s} }

func (a *Admin) loadUser(ctx context.Context, name string) (*metadata.User, error) {
	doc, found, err := a.Store.FindOne(ctx, CollUsers, store.Doc{"name": name})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, dfserrors.New(dfserrors.UserNotFound, "user %q not found", name)
	}
	return docToUser(doc), nil
}

func (a *Admin) loadGroup(ctx context.Context, name string) (*metadata.Group, error) {
	doc, found, err := a.Store.FindOne(ctx, CollGroups, store.Doc{"name": name})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, dfserrors.New(dfserrors.GroupNotFound, "group %q not found", name)
	}
	return docToGroup(doc), nil
}

// Groups returns the list of group names a user belongs to, for building
// a request's permission context. Every user is implicitly a member of
// their own main group, named identically to their username.
func (a *Admin) Groups(ctx context.Context, username string) ([]string, error) {
	u, err := a.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}
	return append([]string{username}, u.Groups...), nil
}

// Authenticate verifies a password against the stored hash.
func (a *Admin) Authenticate(ctx context.Context, username, password string) (*metadata.User, error) {
	u, err := a.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}
	ok, err := auth.VerifyPassword(password, u.PassHash)
	if err != nil || !ok {
		return nil, dfserrors.New(dfserrors.UserNotFound, "invalid credentials")
	}
	return u, nil
}

// UserAdd creates a new user and their main group (named after the
// user), both in one batch.
func (a *Admin) UserAdd(ctx context.Context, name, password string) ([]store.Record, error) {
	if _, found, err := a.Store.FindOne(ctx, CollUsers, store.Doc{"name": name}); err != nil {
		return nil, err
	} else if found {
		return nil, dfserrors.New(dfserrors.UserAlreadyExists, "user %q already exists", name)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &metadata.User{Name: name, PassHash: hash}
	g := &metadata.Group{Name: name, Users: []string{name}}
	return []store.Record{
		{Op: store.OpInsert, Collection: CollUsers, Payload: userToDoc(u)},
		{Op: store.OpInsert, Collection: CollGroups, Payload: groupToDoc(g)},
	}, nil
}

// UserDel removes a user and their main group, and drops their
// membership from every secondary group.
func (a *Admin) UserDel(ctx context.Context, name string) ([]store.Record, error) {
	u, err := a.loadUser(ctx, name)
	if err != nil {
		return nil, err
	}
	batch := []store.Record{
		{Op: store.OpDeleteOne, Collection: CollUsers, Selector: store.Doc{"name": name}},
		{Op: store.OpDeleteOne, Collection: CollGroups, Selector: store.Doc{"name": name}},
	}
	for _, gname := range u.Groups {
		g, err := a.loadGroup(ctx, gname)
		if err != nil {
			continue
		}
		batch = append(batch, store.Record{
			Op: store.OpUpdateOne, Collection: CollGroups,
			Selector: store.Doc{"name": gname},
			Payload:  store.Doc{"users": removeEntry(g.Users, name)},
		})
	}
	return batch, nil
}

// Passwd changes a user's password hash.
func (a *Admin) Passwd(ctx context.Context, name, newPassword string) ([]store.Record, error) {
	if _, err := a.loadUser(ctx, name); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	return []store.Record{{Op: store.OpUpdateOne, Collection: CollUsers, Selector: store.Doc{"name": name}, Payload: store.Doc{"pass_hash": hash}}}, nil
}

// UserMod adds or removes a user from a secondary group. A user's main
// group (named after themself) cannot be left via this verb.
func (a *Admin) UserMod(ctx context.Context, name, group string, add bool) ([]store.Record, error) {
	u, err := a.loadUser(ctx, name)
	if err != nil {
		return nil, err
	}
	if group == name {
		return nil, dfserrors.New(dfserrors.MainUserGroup, "cannot leave main group %q", name)
	}
	g, err := a.loadGroup(ctx, group)
	if err != nil {
		return nil, err
	}

	var newUserGroups, newGroupUsers []string
	if add {
		newUserGroups = append(append([]string(nil), u.Groups...), group)
		newGroupUsers = append(append([]string(nil), g.Users...), name)
	} else {
		newUserGroups = removeEntry(u.Groups, group)
		newGroupUsers = removeEntry(g.Users, name)
	}
	return []store.Record{
		{Op: store.OpUpdateOne, Collection: CollUsers, Selector: store.Doc{"name": name}, Payload: store.Doc{"groups": newUserGroups}},
		{Op: store.OpUpdateOne, Collection: CollGroups, Selector: store.Doc{"name": group}, Payload: store.Doc{"users": newGroupUsers}},
	}, nil
}

// GroupAdd creates an empty secondary group.
func (a *Admin) GroupAdd(ctx context.Context, name string) ([]store.Record, error) {
	if _, found, err := a.Store.FindOne(ctx, CollGroups, store.Doc{"name": name}); err != nil {
		return nil, err
	} else if found {
		return nil, dfserrors.New(dfserrors.GroupAlreadyExists, "group %q already exists", name)
	}
	return []store.Record{{Op: store.OpInsert, Collection: CollGroups, Payload: groupToDoc(&metadata.Group{Name: name})}}, nil
}

// GroupDel removes a secondary group and drops it from every member's
// group list. Deleting a user's main group is refused.
func (a *Admin) GroupDel(ctx context.Context, name string) ([]store.Record, error) {
	g, err := a.loadGroup(ctx, name)
	if err != nil {
		return nil, err
	}
	if _, found, err := a.Store.FindOne(ctx, CollUsers, store.Doc{"name": name}); err != nil {
		return nil, err
	} else if found {
		return nil, dfserrors.New(dfserrors.MainUserGroup, "cannot delete main group %q", name)
	}

	batch := []store.Record{{Op: store.OpDeleteOne, Collection: CollGroups, Selector: store.Doc{"name": name}}}
	for _, uname := range g.Users {
		u, err := a.loadUser(ctx, uname)
		if err != nil {
			continue
		}
		batch = append(batch, store.Record{
			Op: store.OpUpdateOne, Collection: CollUsers,
			Selector: store.Doc{"name": uname},
			Payload:  store.Doc{"groups": removeEntry(u.Groups, name)},
		})
	}
	return batch, nil
}
