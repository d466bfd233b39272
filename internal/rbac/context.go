package rbac

// Level says where a capability is evaluated.
type Level int

const (
	// LevelSystem is the site-wide authorization boundary.
	LevelSystem Level = iota
	// LevelModule is the boundary of one activity inside a course.
	LevelModule
)

// Context is the resolved authorization boundary a capability check runs
// against. A module context always carries its owning course and activity
// instance; a system context carries neither.
type Context struct {
	Level      Level
	CourseID   int64
	ModuleID   int64 // course_modules.id
	InstanceID int64 // activity instance inside the course
}

func SystemContext() Context { return Context{Level: LevelSystem} }

func ModuleContext(moduleID, courseID, instanceID int64) Context {
	return Context{Level: LevelModule, ModuleID: moduleID, CourseID: courseID, InstanceID: instanceID}
}

func (c Context) IsSystem() bool { return c.Level == LevelSystem }
