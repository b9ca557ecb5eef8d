package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/matokeo/core/course"
	"github.com/trezcool/matokeo/core/user"
)

var errCrsNotFoundInCtx = errors.New("course object not found in echo.Context")

type courseApi struct {
	usrSvc   user.ServiceInterface
	svc      course.ServiceInterface
	validate *validator.Validate
}

func registerCourseAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	usrSvc user.ServiceInterface,
	svc course.ServiceInterface,
	validate *validator.Validate,
) {
	api := courseApi{
		usrSvc:   usrSvc,
		svc:      svc,
		validate: validate,
	}

	cg := g.Group("/courses", jwt, staffMiddleware)
	cg.GET("", api.query)
	cg.POST("", api.create, adminMiddleware())

	dg := cg.Group("/:id", courseMiddleware(usrSvc, svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, adminMiddleware())
}

// courseMiddleware loads the course of the ":id" param as the context object.
// Faculty members only ever find the courses they teach.
func courseMiddleware(usrSvc user.ServiceInterface, svc course.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, usrSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			crs, err := svc.Get(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "finding course by ID")
			}
			if !(ctxUsr.IsAdmin() || crs.TaughtBy(ctxUsr.ID)) {
				return errHttpNotFound
			}
			ctx.Set(contextObjectKey, crs)
			return next(ctx)
		}
	}
}

func getContextCourse(ctx echo.Context) (course.Course, error) {
	crs, ok := ctx.Get(contextObjectKey).(course.Course)
	if !ok {
		return course.Course{}, errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
	}
	return crs, nil
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	crs, err := api.svc.Create(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	courses, err := api.svc.Query(ctx.Request().Context(), ctxUsr, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	crs, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) update(ctx echo.Context) error {
	crs, err := getContextCourse(ctx)
	if err != nil {
		return err
	}

	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err := data.Validate(ctx.Request().Context(), crs, api.validate, api.svc); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	crs, err = api.svc.Update(ctx.Request().Context(), ctxUsr, crs, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, crs)
}
