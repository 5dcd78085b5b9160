package repos_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/matryer/is"
	"github.com/tauraamui/dragonreel/pkg/database/dbconn"
	"github.com/tauraamui/dragonreel/pkg/database/models"
	"github.com/tauraamui/dragonreel/pkg/database/repos"
)

type mockGormWrapper struct {
	error   error
	created []interface{}
	chain   *queryChain
	result  interface{}
}

type queryChain struct {
	where whereQuery
	order interface{}
	limit int
}

type whereQuery struct {
	query interface{}
	args  []interface{}
}

func (w *mockGormWrapper) Error() error {
	return w.error
}

func (w *mockGormWrapper) AutoMigrate(...interface{}) error {
	return w.error
}

func (w *mockGormWrapper) Create(value interface{}) dbconn.GormWrapper {
	if w.error == nil {
		w.created = append(w.created, value)
	}
	return w
}

func (w *mockGormWrapper) Where(query interface{}, args ...interface{}) dbconn.GormWrapper {
	w.chain = &queryChain{
		where: whereQuery{
			query: query,
			args:  args,
		},
	}
	return w
}

func (w *mockGormWrapper) Order(value interface{}) dbconn.GormWrapper {
	if w.chain != nil {
		w.chain.order = value
	}
	return w
}

func (w *mockGormWrapper) Limit(limit int) dbconn.GormWrapper {
	if w.chain != nil {
		w.chain.limit = limit
	}
	return w
}

func (w *mockGormWrapper) First(dest interface{}, conds ...interface{}) dbconn.GormWrapper {
	return w.load(dest)
}

func (w *mockGormWrapper) Find(dest interface{}, conds ...interface{}) dbconn.GormWrapper {
	return w.load(dest)
}

func (w *mockGormWrapper) Close() error { return nil }

func (w *mockGormWrapper) load(dest interface{}) dbconn.GormWrapper {
	if w.chain == nil {
		w.error = errors.New("need to call query first")
		return w
	}
	if w.error != nil {
		return w
	}
	w.error = replace(dest, w.result)
	return w
}

func replace(i, v interface{}) error {
	val := reflect.ValueOf(i)
	if val.Kind() != reflect.Ptr {
		return errors.New("not a pointer")
	}

	val = val.Elem()

	newVal := reflect.Indirect(reflect.ValueOf(v))

	if !newVal.IsValid() || !newVal.Type().AssignableTo(val.Type()) {
		return errors.New("mismatched types")
	}

	val.Set(newVal)
	return nil
}

func TestSessionRepoCreateNoErr(t *testing.T) {
	is := is.New(t)

	gorm := mockGormWrapper{}
	repo := repos.SessionRepository{DB: &gorm}

	session := models.PlaybackSession{Title: "Shot010"}
	is.NoErr(repo.Create(&session))
	is.Equal(len(gorm.created), 1)
	is.True(gorm.created[0] == &session)
}

func TestSessionRepoCreateWithErr(t *testing.T) {
	is := is.New(t)

	err := errors.New("unable to create data")
	gorm := mockGormWrapper{error: err}
	repo := repos.SessionRepository{DB: &gorm}

	session := models.PlaybackSession{Title: "Shot010"}
	is.Equal(repo.Create(&session).Error(), err.Error())
	is.Equal(len(gorm.created), 0)
}

func TestSessionRepoFindByUUID(t *testing.T) {
	is := is.New(t)

	existing := models.PlaybackSession{UUID: "existing-session", Title: "Shot010"}
	gorm := mockGormWrapper{result: &existing}
	repo := repos.SessionRepository{DB: &gorm}

	session, err := repo.FindByUUID("existing-session")
	is.NoErr(err)
	is.Equal(session.Title, "Shot010")
	is.Equal(gorm.chain.where.query, "uuid = ?")
	is.Equal(gorm.chain.where.args, []interface{}{"existing-session"})
}

func TestSessionRepoFindByUUIDReturnsError(t *testing.T) {
	is := is.New(t)

	gorm := mockGormWrapper{error: errors.New("record not found")}
	repo := repos.SessionRepository{DB: &gorm}

	_, err := repo.FindByUUID("non-existent-uuid")
	is.Equal(err.Error(), "session of uuid non-existent-uuid not found")
}

func TestSessionRepoLatestByTitle(t *testing.T) {
	is := is.New(t)

	existing := []models.PlaybackSession{{Title: "Shot010", Frames: 48}, {Title: "Shot010", Frames: 24}}
	gorm := mockGormWrapper{result: &existing}
	repo := repos.SessionRepository{DB: &gorm}

	sessions, err := repo.LatestByTitle("Shot010", 5)
	is.NoErr(err)
	is.Equal(len(sessions), 2)
	is.Equal(sessions[0].Frames, 48)
	is.Equal(gorm.chain.where.query, "title = ?")
	is.Equal(gorm.chain.order, "created_at desc")
	is.Equal(gorm.chain.limit, 5)
}
