package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/matokeo/core/marks"
	"github.com/trezcool/matokeo/core/user"
)

type marksApi struct {
	usrSvc user.ServiceInterface
	svc    marks.ServiceInterface
}

// registerMarksAPI mounts routes under /courses/:id and /students/:id.
// Permissions are checked by the marks service, so the routes only need a user.
func registerMarksAPI(g *echo.Group, jwt echo.MiddlewareFunc, usrSvc user.ServiceInterface, svc marks.ServiceInterface) {
	api := marksApi{usrSvc: usrSvc, svc: svc}

	// no sub-group: group middleware would shadow the course detail routes
	g.GET("/courses/:id/results", api.courseResults, jwt, staffMiddleware)
	g.POST("/courses/:id/publish", api.publishCourse, jwt, adminMiddleware())
	g.PUT("/courses/:id/marks/:studentId", api.enter, jwt, staffMiddleware)
	g.PUT("/courses/:id/marks/:studentId/publish", api.publish, jwt, adminMiddleware())
	g.GET("/students/:id/results", api.studentResults, jwt)
}

// Handlers

func (api *marksApi) enter(ctx echo.Context) error {
	var data marks.MarkEntry
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkEntry")
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	row, err := api.svc.EnterMarks(ctx.Request().Context(), ctxUsr, ctx.Param("id"), ctx.Param("studentId"), data)
	if err != nil {
		return errors.Wrap(err, "entering marks")
	}
	return ctx.JSON(http.StatusOK, row)
}

func (api *marksApi) publish(ctx echo.Context) error {
	var data marks.PublishRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PublishRequest")
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	row, err := api.svc.SetPublished(ctx.Request().Context(), ctxUsr, ctx.Param("id"), ctx.Param("studentId"), data)
	if err != nil {
		return errors.Wrap(err, "setting publication")
	}
	return ctx.JSON(http.StatusOK, row)
}

func (api *marksApi) publishCourse(ctx echo.Context) error {
	var data marks.PublishRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PublishRequest")
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	report, err := api.svc.PublishCourse(ctx.Request().Context(), ctxUsr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "publishing course")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *marksApi) courseResults(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	res, err := api.svc.CourseResults(ctx.Request().Context(), ctxUsr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course results")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *marksApi) studentResults(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	res, err := api.svc.StudentResults(ctx.Request().Context(), ctxUsr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting student results")
	}
	return ctx.JSON(http.StatusOK, res)
}
