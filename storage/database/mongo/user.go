package mongorepos

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/user"
)

type userDoc struct {
	ID           string     `bson:"_id"`
	Name         string     `bson:"name"`
	Username     string     `bson:"username,omitempty"`
	Email        string     `bson:"email,omitempty"`
	IsActive     bool       `bson:"is_active"`
	Roles        []string   `bson:"roles"`
	PasswordHash []byte     `bson:"password_hash"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
	LastLogin    *time.Time `bson:"last_login,omitempty"`
}

func newUserDoc(usr user.User) userDoc {
	doc := userDoc{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        usr.Email,
		IsActive:     usr.IsActive,
		Roles:        append(make([]string, 0, len(usr.Roles)), usr.Roles...),
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
	}
	if !usr.LastLogin.IsZero() {
		t := usr.LastLogin.UTC()
		doc.LastLogin = &t
	}
	return doc
}

func (doc userDoc) toUser() user.User {
	usr := user.User{
		ID:           doc.ID,
		Name:         doc.Name,
		Username:     doc.Username,
		Email:        doc.Email,
		IsActive:     doc.IsActive,
		Roles:        doc.Roles,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt.UTC(),
		UpdatedAt:    doc.UpdatedAt.UTC(),
	}
	if usr.Roles == nil {
		usr.Roles = make([]string, 0)
	}
	if doc.LastLogin != nil {
		usr.LastLogin = doc.LastLogin.UTC()
	}
	return usr
}

type userRepository struct {
	coll *mongo.Collection
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *mongo.Database) user.Repository {
	return &userRepository{coll: db.Collection(usersCollection)}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	ors := make(bson.A, 0, 2)
	if username != "" {
		ors = append(ors, bson.M{"username": username})
	}
	if email != "" {
		ors = append(ors, bson.M{"email": email})
	}
	if len(ors) == 0 {
		return nil
	}
	filter := bson.M{"$or": ors}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, usr := range excludedUsers {
			ids = append(ids, usr.ID)
		}
		filter["_id"] = bson.M{"$nin": ids}
	}

	var doc userDoc
	if err := repo.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil
		}
		return errors.Wrap(err, "checking username uniqueness")
	}
	if username != "" && doc.Username == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	if _, err := repo.coll.InsertOne(ctx, newUserDoc(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func containsRegex(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	query := bson.M{}
	if filter != nil {
		if filter.IDs != nil {
			query["_id"] = bson.M{"$in": filter.IDs}
		}
		if filter.Search != "" {
			re := containsRegex(filter.Search)
			query["$or"] = bson.A{bson.M{"name": re}, bson.M{"username": re}, bson.M{"email": re}}
		}
		if len(filter.Roles) > 0 {
			prefixes := make(bson.A, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				prefixes = append(prefixes, primitive.Regex{Pattern: "^" + regexp.QuoteMeta(role)})
			}
			query["roles"] = bson.M{"$in": prefixes}
		}
		if filter.IsActive != nil {
			query["is_active"] = *filter.IsActive
		}
		created := bson.M{}
		if !filter.CreatedFrom.IsZero() {
			created["$gte"] = filter.CreatedFrom.UTC()
		}
		if !filter.CreatedTo.IsZero() {
			created["$lte"] = filter.CreatedTo.UTC()
		}
		if len(created) > 0 {
			query["created_at"] = created
		}
	}

	opts := options.Find().SetSort(sortOf(ordering, bson.E{Key: "created_at", Value: 1}, bson.E{Key: "_id", Value: 1}))
	cursor, err := repo.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	docs := make([]userDoc, 0)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding users")
	}
	users := make([]user.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.toUser())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var query bson.M
	switch {
	case filter.ID != "":
		query = bson.M{"_id": filter.ID}
	case filter.Username != "":
		query = bson.M{"username": filter.Username}
	case filter.Email != "":
		query = bson.M{"email": filter.Email}
	case filter.UsernameOrEmail != "":
		query = bson.M{"$or": bson.A{
			bson.M{"username": filter.UsernameOrEmail},
			bson.M{"email": filter.UsernameOrEmail},
		}}
	default:
		return user.User{}, user.ErrNotFound
	}

	var doc userDoc
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if err := repo.coll.FindOne(ctx, query, opts).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return doc.toUser(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	res, err := repo.coll.ReplaceOne(ctx, bson.M{"_id": usr.ID}, newUserDoc(usr))
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if res.MatchedCount == 0 {
		return user.User{}, errors.Wrap(user.ErrNotFound, "updating user")
	}
	return usr, nil
}

// DeleteUsersByID also removes the marks of the deleted users and unassigns the courses they taught.
func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := repo.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	marksColl := repo.coll.Database().Collection(marksCollection)
	if _, err := marksColl.DeleteMany(ctx, bson.M{"student_id": bson.M{"$in": ids}}); err != nil {
		return 0, errors.Wrap(err, "deleting marks of users")
	}
	coursesColl := repo.coll.Database().Collection(coursesCollection)
	if _, err := coursesColl.UpdateMany(
		ctx,
		bson.M{"faculty_id": bson.M{"$in": ids}},
		bson.M{"$unset": bson.M{"faculty_id": ""}},
	); err != nil {
		return 0, errors.Wrap(err, "unassigning courses of users")
	}
	return int(res.DeletedCount), nil
}
