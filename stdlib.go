package lisp

// stdlibSource is the embedded bootstrap library (spec section 4.6): a
// small set of macros built entirely out of special forms and primitives,
// loaded through the same Eval path as any other program so that the
// parser, compiler, and macro expander are all exercised before a single
// user form runs. Deliberately minimal — this is a proof that the loading
// path works, not a standard library in its own right.
const stdlibSource = `
(defmacro define (target . body)
  (if (cons? target)
      (list 'set! (car target) (cons 'lambda (cons (cdr target) body)))
      (list 'set! target (car body))))

(defmacro and args
  (if (null? args) #t
      (if (null? (cdr args)) (car args)
          (list 'if (car args) (cons 'and (cdr args)) #f))))

(defmacro or args
  (if (null? args) #f
      (if (null? (cdr args)) (car args)
          (list 'if* (car args) (cons 'or (cdr args))))))

(defmacro let (bindings . body)
  (cons (cons 'lambda (cons (map car bindings) body))
        (map cadr bindings)))

(defmacro let* (bindings . body)
  (if (null? bindings) (cons 'begin body)
      (list 'let (list (car bindings))
            (cons 'let* (cons (cdr bindings) body)))))

(defmacro letrec (bindings . body)
  (list 'let
        (map (lambda (b) (list (car b) '())) bindings)
        (cons 'begin
              (append (map (lambda (b) (list 'set! (car b) (cadr b))) bindings)
                      body))))

(defmacro cond clauses
  (if (null? clauses) ()
      (if (eq? (car (car clauses)) 'else)
          (cons 'begin (cdr (car clauses)))
          (list 'if (car (car clauses))
                (cons 'begin (cdr (car clauses)))
                (cons 'cond (cdr clauses))))))

(defmacro case (key . clauses)
  (if (null? clauses) ()
      (if (eq? (car (car clauses)) 'else)
          (cons 'begin (cdr (car clauses)))
          (list 'if (list 'member? key (list 'quote (car (car clauses))))
                (cons 'begin (cdr (car clauses)))
                (cons 'case (cons key (cdr clauses)))))))

(defmacro for (spec . body)
  (list 'let (list (list (car spec) (cadr spec)))
        (cons 'while
              (cons (list '< (car spec) (caddr spec))
                    (append body (list (list 'set! (car spec) (list '+ (car spec) 1))))))))

(defmacro dotimes (spec . body)
  (cons 'for (cons (list (car spec) 0 (cadr spec)) body)))

(defmacro define-record (name fields)
  (list 'begin
        (list 'define (cons (symbol (string-append "make-" (symbol-name name))) fields)
              (cons 'vector (cons (list 'quote name) fields)))
        (list 'define (list (symbol (string-append (symbol-name name) "?")) 'r)
              (list 'if (list 'vector? 'r) (list 'eq? (list 'vector-ref 'r 0) (list 'quote name)) #f))))
`
