// Package analyzer builds the typed AST from a parse tree.
//
// Every construct is checked when it is built: names against the static
// scope memory, calls against the overload resolver, assignments against
// the type compatibility rules. The first failure aborts the build.
//
// The parse tree layout the analyzer expects, per node kind. Text is the
// node's terminal text; "expr" is any expression node and "kind: expr" a
// node of that kind wrapping one expression.
//
//	program         statement...
//	statement       [any statement]           empty statements are skipped
//	import          text: path                [name text: namespace]
//	function        text: name                [terminal] [parameters] [results] body
//	overload        text: target              overload_input... overload_result...
//	overload_input  text: port or ""          type...
//	overload_result text: port or ""          type
//	scope           text: name or ""          [terminal] [parameters] [results] body
//	parameters      parameter...
//	parameter       text: name                type [default: expr]
//	results         result...
//	result          text: name                type [feedback text: parameter]
//	body            statement...
//	terminal        text: flags, any of F P D
//	assignment      text: "=" or ":="         targets expr
//	targets         (declare | variable | access_lhs | ignore)...
//	declare         text: name                type
//	access_lhs      text: variable            member text: a.b | index: expr
//	using           expr
//	for_each        text: name or ""          [terminal] [loop_settings] loop_parameter... loop_result... body
//	iterate         text: name or ""          [terminal] [loop_settings] loop_parameter... loop_result... body
//	do_while        text: name or ""          [terminal] [loop_settings] [no_limit] loop_parameter... loop_result... body condition
//	loop_settings   [max_iterations: expr] [current_index text: name or "": expr]
//	loop_parameter  text: name                [iteration_target] [type expr]
//	loop_result     text: name                type [iteration_target] [state text: parameter]
//	condition       expr
//
//	binary          text: + - * / % **        expr expr
//	compare         expr (operator text: == != < > <= >=, expr)...
//	logic           text: && || ^             expr expr
//	unary           text: + - !               expr
//	call            text: name                [terminal] argument...
//	call            type                      argument...          type constructor
//	argument        text: keyword or ""       expr
//	number          text: digits with an optional type suffix
//	string          text: contents
//	bool            text: true or false
//	variable        text: name, # for the loop index
//	array           expr...
//	empty_array     type [expr]               type is the element type
//	vector          text: suffix              expr...
//	matrix          text: suffix              column...
//	column          expr...
//	object          entry...
//	entry           expr expr
//	enum            text: Type.Value
//	access          expr (member text: a.b | index: expr | slice | key_default)...
//	slice           [start: expr] [stop: expr] [step: expr]
//	key_default     expr (expr | type)
//	port_access     text: port.member         expr
//	type            text: float, float[], array<float>, auto or a catalog type
package analyzer
